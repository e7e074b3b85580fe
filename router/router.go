// Package router implements the in-process broker that multiplexes many
// concurrent client request streams onto many provider connections.
//
// The flow through the broker:
//
//	clients                router                 providers
//	RouteRequest --------> inbox ---------------> ServiceConn.Requests
//	ResponseStream.C <---- inbox <--------------- ServiceConn.Responses
//
// The router finds the provider by service id on the way in and the client
// by request id on the way out.
package router

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrServiceNotFound is returned when dropping a service id with no active
// registration, letting callers detect a double drop.
var ErrServiceNotFound = errors.New("service not found")

// Router brokers requests from clients to registered services and streams
// responses back. Alternate transports (network-attached, sharded) can
// satisfy the same contract without touching callers.
type Router interface {
	// RegisterService binds a service id to a fresh connection pair,
	// replacing any prior registration for the same id.
	RegisterService(serviceID string) (*ServiceConn, error)
	// RouteRequest enqueues a request for dispatch and returns the stream
	// its responses will arrive on.
	RouteRequest(req *Request) (*ResponseStream, error)
	// DropService removes a service registration.
	DropService(serviceID string) error
}

// ServiceConn is the provider's half of a service registration. The handler
// that registered the service drains Requests, writes Responses, and exits
// when Done is closed (drop or replacement by a newer session).
type ServiceConn struct {
	Requests  <-chan *Request
	Responses chan<- *Response
	Done      <-chan struct{}
}

// ResponseStream is the client's half of a routed request: a lazy, finite
// sequence of responses terminated by a stream-done marker or by Close.
// Callers must Close the stream when they stop reading so the router can
// release the request id.
type ResponseStream struct {
	// C yields responses in the order the provider sent them and is closed
	// after a response with StreamDone arrives.
	C <-chan *Response

	done chan struct{}
	once *sync.Once
}

// Close signals that the caller is gone. It is safe to call multiple times
// and after the stream already terminated.
func (s *ResponseStream) Close() {
	s.once.Do(func() { close(s.done) })
}
