package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aimo-network/aimo/router"
)

// requestTypeCompletion tags completion traffic on the provider wire.
const requestTypeCompletion = "completion_model"

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream") || strings.Contains(contentType, "text/stream")
}

// httpStatus maps a provider-supplied status code onto one net/http will
// accept. The wire carries a full uint16, while WriteHeader panics outside
// 100-999; anything unusable becomes a 502.
func httpStatus(code uint16) int {
	if code < 100 || code > 599 {
		return http.StatusBadGateway
	}
	return int(code)
}

// ChatCompletions exposes an OpenAI-compatible completion API. The model
// field addresses a provider as <target>:<model_name>; the target is
// stripped before the body is forwarded.
//
// POST /api/v1/chat/completions
func (s *Server) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	model, ok := payload["model"].(string)
	if !ok {
		handleError(w, "missing required field `model`", http.StatusBadRequest)
		return
	}
	target, modelName, found := strings.Cut(model, ":")
	if !found || target == "" || modelName == "" {
		handleError(w, "field `model` must be of the form <target>:<model_name>", http.StatusBadRequest)
		return
	}
	payload["model"] = modelName
	body, err := json.Marshal(payload)
	if err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := secretKeyFromContext(r.Context())
	if key == nil {
		handleError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	req := &router.Request{
		SenderID:    key.Signer,
		RequestID:   uuid.NewString(),
		ServiceID:   target,
		RequestType: requestTypeCompletion,
		Method:      http.MethodPost,
		Payload:     string(body),
		Headers:     map[string]string{"content-type": "application/json"},
	}
	stream, err := s.broker.RouteRequest(req)
	if err != nil {
		handleError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	// A target with no live provider session never answers; bound the wait
	// so the caller gets a 404 instead of hanging.
	waitCtx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	var first *router.Response
	select {
	case resp, ok := <-stream.C:
		if !ok {
			handleError(w, "service "+target+" not found", http.StatusNotFound)
			return
		}
		first = resp
	case <-waitCtx.Done():
		handleError(w, "service "+target+" not found", http.StatusNotFound)
		return
	}

	contentType := first.ContentType
	if ct, ok := first.Headers["content-type"]; ok {
		contentType = ct
	}
	if isEventStream(contentType) {
		s.relayEventStream(w, r, first, stream)
		return
	}

	status := httpStatus(first.StatusCode)
	if status < 200 || status > 299 {
		handleError(w, first.Payload, status)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write([]byte(first.Payload)); err != nil {
		log.WithError(err).Debug("Could not write response body")
	}
}

// relayEventStream forwards provider chunks to the client as a
// server-sent-event stream until the terminal marker or channel closure.
func (s *Server) relayEventStream(w http.ResponseWriter, r *http.Request, first *router.Response, stream *router.ResponseStream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		handleError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeChunk := func(resp *router.Response) bool {
		if resp.Payload != "" {
			if _, err := w.Write([]byte(resp.Payload)); err != nil {
				log.WithError(err).Debug("Client disconnected mid-stream")
				return false
			}
			flusher.Flush()
		}
		return !resp.StreamDone
	}

	if !writeChunk(first) {
		return
	}
	for {
		select {
		case resp, ok := <-stream.C:
			if !ok {
				return
			}
			if !writeChunk(resp) {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
