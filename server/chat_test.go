package server

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimo-network/aimo/router"
)

// fakeProvider registers a service directly on the router and answers each
// request by invoking respond with it.
func fakeProvider(t *testing.T, env *testEnv, serviceID string, respond func(req *router.Request) []*router.Response) {
	conn, err := env.broker.RegisterService(serviceID)
	require.NoError(t, err)
	go func() {
		for {
			select {
			case <-conn.Done:
				return
			case req := <-conn.Requests:
				for _, resp := range respond(req) {
					select {
					case conn.Responses <- resp:
					case <-conn.Done:
						return
					}
				}
			}
		}
	}()
	t.Cleanup(func() {
		_ = env.broker.DropService(serviceID)
	})
}

func TestChatCompletions_MissingModel(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]interface{}{"messages": []string{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e jsonError
	decodeBody(t, resp, &e)
	assert.Equal(t, "missing required field `model`", e.Message)
}

func TestChatCompletions_MalformedModel(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	for _, model := range []string{"gpt-4o", ":gpt-4o", "svc:"} {
		resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": model})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "model %q", model)
	}
}

func TestChatCompletions_UnknownService(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": "ghost:gpt-4o"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e jsonError
	decodeBody(t, resp, &e)
	assert.Equal(t, "service ghost not found", e.Message)
}

func TestChatCompletions_ForwardsToProvider(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	var forwarded *router.Request
	fakeProvider(t, env, "svc", func(req *router.Request) []*router.Response {
		forwarded = req
		return []*router.Response{{
			RequestID:   req.RequestID,
			StatusCode:  http.StatusOK,
			ContentType: "application/json",
			Payload:     `{"id":"cmpl-1"}`,
			StreamDone:  true,
		}}
	})

	resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": "svc:gpt-4o"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"cmpl-1"}`, string(body))

	// The provider sees the bare model name, not the routing prefix.
	require.NotNil(t, forwarded)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(forwarded.Payload), &payload))
	assert.Equal(t, "gpt-4o", payload["model"])
	assert.Equal(t, "svc", forwarded.ServiceID)
	assert.Equal(t, "completion_model", forwarded.RequestType)
	assert.Equal(t, http.MethodPost, forwarded.Method)
	assert.NotEmpty(t, forwarded.RequestID)
}

func TestChatCompletions_ProviderError(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	fakeProvider(t, env, "svc", func(req *router.Request) []*router.Response {
		return []*router.Response{{
			RequestID:   req.RequestID,
			StatusCode:  http.StatusTooManyRequests,
			ContentType: "application/json",
			Payload:     `rate limited`,
			StreamDone:  true,
		}}
	})

	resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": "svc:gpt-4o"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	var e jsonError
	decodeBody(t, resp, &e)
	assert.Equal(t, "rate limited", e.Message)
}

// Frames carry a full uint16 status; codes net/http cannot write must come
// back as a clean 502 instead of tearing the connection down.
func TestChatCompletions_InvalidProviderStatus(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	for _, code := range []uint16{0, 42, 1000, 65535} {
		code := code
		fakeProvider(t, env, "svc", func(req *router.Request) []*router.Response {
			return []*router.Response{{
				RequestID:  req.RequestID,
				StatusCode: code,
				Payload:    "broken provider",
				StreamDone: true,
			}}
		})

		resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": "svc:gpt-4o"})
		require.Equal(t, http.StatusBadGateway, resp.StatusCode, "status_code %d", code)
		var e jsonError
		decodeBody(t, resp, &e)
		assert.Equal(t, "broken provider", e.Message)
	}
}

func TestChatCompletions_EventStream(t *testing.T) {
	env := setupServer(t)
	encoded, _ := mintKey(t, "dev")

	fakeProvider(t, env, "svc", func(req *router.Request) []*router.Response {
		chunk := func(data string) *router.Response {
			return &router.Response{
				RequestID:     req.RequestID,
				StatusCode:    http.StatusOK,
				Headers:       map[string]string{"content-type": "text/event-stream"},
				Payload:       data,
				IsStreamChunk: true,
			}
		}
		return []*router.Response{
			chunk("data: one\n\n"),
			chunk("data: two\n\n"),
			chunk("data: [DONE]\n\n"),
			{RequestID: req.RequestID, StatusCode: http.StatusOK, StreamDone: true},
		}
	})

	resp := postJSON(t, env, "/api/v1/chat/completions", encoded, map[string]string{"model": "svc:gpt-4o"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\ndata: two\n\ndata: [DONE]\n\n", string(body))
}
