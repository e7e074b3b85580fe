package router

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *LocalRouter {
	t.Helper()
	r := NewLocalRouter()
	r.Start()
	t.Cleanup(func() {
		require.NoError(t, r.Stop())
	})
	return r
}

// echoService runs a provider that answers every request with its own
// payload until conn.Done closes.
func echoService(conn *ServiceConn) {
	for {
		select {
		case <-conn.Done:
			return
		case req := <-conn.Requests:
			conn.Responses <- &Response{
				RequestID:   req.RequestID,
				StatusCode:  200,
				ContentType: "application/json",
				Payload:     req.Payload,
				StreamDone:  true,
			}
		}
	}
}

func recvResponse(t *testing.T, stream *ResponseStream) *Response {
	t.Helper()
	select {
	case resp := <-stream.C:
		require.NotNil(t, resp, "stream closed before a response arrived")
		return resp
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for response")
		return nil
	}
}

func TestLocalRouter_Echo(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)
	go echoService(conn)

	stream, err := r.RouteRequest(&Request{
		SenderID:    "sender",
		RequestID:   "r1",
		ServiceID:   "svc",
		RequestType: "test",
		Method:      "GET",
		Payload:     `{"ping":"pong"}`,
	})
	require.NoError(t, err)
	defer stream.Close()

	resp := recvResponse(t, stream)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, uint16(200), resp.StatusCode)
	assert.Equal(t, `{"ping":"pong"}`, resp.Payload)

	// stream_done terminates the sequence.
	_, ok := <-stream.C
	assert.False(t, ok)
}

func TestLocalRouter_StreamingFanOut(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)

	go func() {
		req := <-conn.Requests
		for i := 1; i <= 3; i++ {
			conn.Responses <- &Response{
				RequestID:     req.RequestID,
				StatusCode:    200,
				ContentType:   "text/event-stream",
				Payload:       fmt.Sprintf("chunk-%d", i),
				IsStreamChunk: true,
				StreamDone:    i == 3,
			}
		}
	}()

	stream, err := r.RouteRequest(&Request{RequestID: "r2", ServiceID: "svc"})
	require.NoError(t, err)
	defer stream.Close()

	for i := 1; i <= 3; i++ {
		resp := recvResponse(t, stream)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), resp.Payload)
	}
	_, ok := <-stream.C
	assert.False(t, ok)
}

// Responses for one request id are delivered in the order the provider sent
// them even under a long burst.
func TestLocalRouter_OrderingPerRequest(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)

	const chunks = 500
	go func() {
		req := <-conn.Requests
		for i := 0; i < chunks; i++ {
			conn.Responses <- &Response{
				RequestID:     req.RequestID,
				Payload:       fmt.Sprintf("%d", i),
				IsStreamChunk: true,
				StreamDone:    i == chunks-1,
			}
		}
	}()

	stream, err := r.RouteRequest(&Request{RequestID: "burst", ServiceID: "svc"})
	require.NoError(t, err)
	defer stream.Close()

	for i := 0; i < chunks; i++ {
		resp := recvResponse(t, stream)
		require.Equal(t, fmt.Sprintf("%d", i), resp.Payload)
	}
}

// Responses for one request id are never delivered to a client awaiting a
// different id.
func TestLocalRouter_Isolation(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)
	go echoService(conn)

	a, err := r.RouteRequest(&Request{RequestID: "ra", ServiceID: "svc", Payload: "a"})
	require.NoError(t, err)
	defer a.Close()
	b, err := r.RouteRequest(&Request{RequestID: "rb", ServiceID: "svc", Payload: "b"})
	require.NoError(t, err)
	defer b.Close()

	respA := recvResponse(t, a)
	respB := recvResponse(t, b)
	assert.Equal(t, "ra", respA.RequestID)
	assert.Equal(t, "a", respA.Payload)
	assert.Equal(t, "rb", respB.RequestID)
	assert.Equal(t, "b", respB.Payload)
}

// One client that stops reading its stream must not hold up delivery for
// anyone else: the flood toward the stalled client is absorbed and an
// unrelated request is still served.
func TestLocalRouter_SlowClientDoesNotStallDispatch(t *testing.T) {
	r := setupRouter(t)
	slowConn, err := r.RegisterService("slow-svc")
	require.NoError(t, err)
	echoConn, err := r.RegisterService("echo-svc")
	require.NoError(t, err)
	go echoService(echoConn)

	// This client never reads a single response.
	stalled, err := r.RouteRequest(&Request{RequestID: "stalled", ServiceID: "slow-svc"})
	require.NoError(t, err)
	defer stalled.Close()

	// Flood far more chunks at it than any buffer on the delivery path holds.
	flooded := make(chan struct{})
	go func() {
		defer close(flooded)
		req := <-slowConn.Requests
		for i := 0; i < clientBufferSize+100; i++ {
			select {
			case slowConn.Responses <- &Response{RequestID: req.RequestID, Payload: "chunk", IsStreamChunk: true}:
			case <-slowConn.Done:
				return
			}
		}
	}()
	select {
	case <-flooded:
	case <-time.After(5 * time.Second):
		t.Fatal("Flood toward the stalled client blocked the router")
	}

	stream, err := r.RouteRequest(&Request{RequestID: "healthy", ServiceID: "echo-svc", Payload: `{"ok":true}`})
	require.NoError(t, err)
	defer stream.Close()
	resp := recvResponse(t, stream)
	assert.Equal(t, "healthy", resp.RequestID)
	assert.Equal(t, `{"ok":true}`, resp.Payload)
}

// After re-registration, requests route only to the newer session and the
// prior session is told to exit.
func TestLocalRouter_ServiceReplacement(t *testing.T) {
	r := setupRouter(t)
	first, err := r.RegisterService("svc")
	require.NoError(t, err)

	second, err := r.RegisterService("svc")
	require.NoError(t, err)
	go echoService(second)

	select {
	case <-first.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("Prior session was not released on replacement")
	}

	stream, err := r.RouteRequest(&Request{RequestID: "r3", ServiceID: "svc", Payload: "x"})
	require.NoError(t, err)
	defer stream.Close()
	resp := recvResponse(t, stream)
	assert.Equal(t, "x", resp.Payload)
}

func TestLocalRouter_DropService(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)

	require.NoError(t, r.DropService("svc"))
	select {
	case <-conn.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("Session was not released on drop")
	}

	err = r.DropService("svc")
	require.True(t, errors.Is(err, ErrServiceNotFound))
}

// An unknown service id drops the request silently; the stream stays open
// until the caller gives up.
func TestLocalRouter_UnknownService(t *testing.T) {
	r := setupRouter(t)
	stream, err := r.RouteRequest(&Request{RequestID: "r4", ServiceID: "ghost"})
	require.NoError(t, err)
	select {
	case resp := <-stream.C:
		t.Fatalf("Unexpected response: %+v", resp)
	case <-time.After(100 * time.Millisecond):
	}
	stream.Close()
}

// Closing the stream releases the request id so later responses are dropped
// instead of piling up.
func TestLocalRouter_ClientCloseReleasesEntry(t *testing.T) {
	r := setupRouter(t)
	conn, err := r.RegisterService("svc")
	require.NoError(t, err)

	stream, err := r.RouteRequest(&Request{RequestID: "r5", ServiceID: "svc"})
	require.NoError(t, err)

	req := <-conn.Requests
	stream.Close()

	// Give the relay a moment to deregister, then flood; nothing should block.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < clientBufferSize*2; i++ {
		conn.Responses <- &Response{RequestID: req.RequestID, Payload: "late"}
	}
	require.NoError(t, r.Status())
}

func TestFilterEssentialHeaders(t *testing.T) {
	got := FilterEssentialHeaders(map[string]string{
		"Content-Type":  "application/json",
		"Set-Cookie":    "secret",
		"cache-control": "no-store",
	}, EssentialResponseHeaders)
	assert.Equal(t, map[string]string{
		"content-type":  "application/json",
		"cache-control": "no-store",
	}, got)
}
