package proxy

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/aimo-network/aimo/router"
)

// completionPath is where OpenAI compatible endpoints serve completions.
const completionPath = "/v1/chat/completions"

// streamChunkSize bounds how much of a streamed body is shipped per frame.
const streamChunkSize = 4096

// serveRequest forwards one routed request to the local endpoint and ships
// the response frames back through send.
func (s *Service) serveRequest(ctx context.Context, req *router.Request, send chan<- *router.Response) {
	resp, err := s.callEndpoint(ctx, req)
	if err != nil {
		log.WithError(err).WithField("requestID", req.RequestID).Warn("Could not reach local endpoint")
		enqueue(ctx, send, &router.Response{
			RequestID:   req.RequestID,
			StatusCode:  http.StatusBadGateway,
			ContentType: "application/json",
			Payload:     `{"message":"upstream endpoint unreachable"}`,
			StreamDone:  true,
		})
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close endpoint response body")
		}
	}()

	headers := router.FilterEssentialHeaders(flattenHeader(resp.Header), router.EssentialResponseHeaders)
	if isEventStream(resp.Header.Get("Content-Type")) {
		s.relayStream(ctx, req, resp, headers, send)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).WithField("requestID", req.RequestID).Warn("Could not read endpoint response")
		enqueue(ctx, send, &router.Response{
			RequestID:   req.RequestID,
			StatusCode:  http.StatusBadGateway,
			ContentType: "application/json",
			Payload:     `{"message":"upstream endpoint failed mid-response"}`,
			StreamDone:  true,
		})
		return
	}
	enqueue(ctx, send, &router.Response{
		RequestID:   req.RequestID,
		StatusCode:  uint16(resp.StatusCode),
		ContentType: resp.Header.Get("Content-Type"),
		Payload:     string(body),
		Headers:     headers,
		StreamDone:  true,
	})
}

// callEndpoint builds and issues the HTTP request described by the routed
// frame against the configured endpoint.
func (s *Service) callEndpoint(ctx context.Context, req *router.Request) (*http.Response, error) {
	path := req.Endpoint
	if path == "" {
		path = completionPath
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	target := strings.TrimSuffix(s.cfg.EndpointURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(req.Payload))
	if err != nil {
		return nil, errors.Wrapf(err, "could not build request for %s", target)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	return s.client.Do(httpReq)
}

// relayStream ships a streamed body back as chunk frames followed by a
// terminal marker.
func (s *Service) relayStream(ctx context.Context, req *router.Request, resp *http.Response, headers map[string]string, send chan<- *router.Response) {
	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, streamChunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if !enqueue(ctx, send, &router.Response{
				RequestID:     req.RequestID,
				StatusCode:    uint16(resp.StatusCode),
				ContentType:   resp.Header.Get("Content-Type"),
				Payload:       string(buf[:n]),
				Headers:       headers,
				IsStreamChunk: true,
			}) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).WithField("requestID", req.RequestID).Debug("Stream ended abnormally")
			}
			break
		}
	}
	enqueue(ctx, send, &router.Response{
		RequestID:  req.RequestID,
		StatusCode: uint16(resp.StatusCode),
		Headers:    headers,
		StreamDone: true,
	})
}

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream") || strings.Contains(contentType, "text/stream")
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}
