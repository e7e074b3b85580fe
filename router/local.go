package router

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "router")

const (
	// inboxSize bounds the central dispatch channel.
	inboxSize = 128
	// serviceBufferSize bounds each provider connection pair.
	serviceBufferSize = 16
	// clientBufferSize bounds the per-request delivery queue between the
	// dispatch loop and a client's relay.
	clientBufferSize = 128
)

// envelope is one unit of work for the dispatch loop: exactly one of the
// two fields is set.
type envelope struct {
	request  *Request
	response *Response
}

type serviceEntry struct {
	requests chan *Request
	done     chan struct{}
	once     sync.Once
}

func (e *serviceEntry) close() {
	e.once.Do(func() { close(e.done) })
}

type clientEntry struct {
	responses chan *Response
	done      chan struct{}
	once      sync.Once
}

func (e *clientEntry) close() {
	e.once.Do(func() { close(e.done) })
}

// LocalRouter is the in-process Router implementation. It owns the service
// and client registries and a single dispatch goroutine draining the
// central inbox. The registry lock is held only across map operations,
// never across channel sends.
type LocalRouter struct {
	mu       sync.Mutex
	services map[string]*serviceEntry
	clients  map[string]*clientEntry

	inbox    chan envelope
	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
}

var _ = Router(&LocalRouter{})

// NewLocalRouter instantiates a router; Start launches its dispatch loop.
func NewLocalRouter() *LocalRouter {
	return &LocalRouter{
		services: make(map[string]*serviceEntry),
		clients:  make(map[string]*clientEntry),
		inbox:    make(chan envelope, inboxSize),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (r *LocalRouter) Start() {
	go r.run()
}

// Stop terminates the dispatch loop and wakes every pump waiting on it.
func (r *LocalRouter) Stop() error {
	r.quitOnce.Do(func() { close(r.quit) })
	return nil
}

// Status returns an error once the dispatch loop has exited.
func (r *LocalRouter) Status() error {
	select {
	case <-r.exited:
		return errors.New("router dispatch loop is not running")
	default:
		return nil
	}
}

func (r *LocalRouter) run() {
	defer close(r.exited)
	log.Info("Router created and running")
	for {
		select {
		case <-r.quit:
			return
		case env := <-r.inbox:
			switch {
			case env.request != nil:
				r.dispatchRequest(env.request)
			case env.response != nil:
				r.dispatchResponse(env.response)
			}
		}
	}
}

// dispatchRequest forwards a request to the provider registered for its
// service id. The send happens in its own goroutine so a slow provider
// blocks its forwarder, not the dispatch loop.
func (r *LocalRouter) dispatchRequest(req *Request) {
	r.mu.Lock()
	entry := r.services[req.ServiceID]
	r.mu.Unlock()
	if entry == nil {
		log.WithField("serviceID", req.ServiceID).Debug("Service not found, dropping request")
		return
	}
	go func() {
		select {
		case entry.requests <- req:
		case <-entry.done:
			log.WithField("serviceID", req.ServiceID).Debug("Service connection closed before forward")
		}
	}()
}

// dispatchResponse hands a response to the relay of the client awaiting its
// request id. Going through the single relay keeps per-request ordering. The
// relay drains its channel eagerly into an internal queue, so the loop never
// waits on a client that stopped reading its stream; the done channel covers
// the window where a finished relay leaves late responses behind.
func (r *LocalRouter) dispatchResponse(resp *Response) {
	r.mu.Lock()
	entry := r.clients[resp.RequestID]
	r.mu.Unlock()
	if entry == nil {
		log.WithField("requestID", resp.RequestID).Debug("Request client not found, dropping response")
		return
	}
	select {
	case entry.responses <- resp:
	case <-entry.done:
	}
}

// RegisterService binds serviceID to a fresh connection pair. A prior
// registration under the same id is closed out: last writer wins.
func (r *LocalRouter) RegisterService(serviceID string) (*ServiceConn, error) {
	entry := &serviceEntry{
		requests: make(chan *Request, serviceBufferSize),
		done:     make(chan struct{}),
	}
	responses := make(chan *Response, serviceBufferSize)

	r.mu.Lock()
	if prior, ok := r.services[serviceID]; ok {
		prior.close()
		log.WithField("serviceID", serviceID).Info("Replacing existing service registration")
	}
	r.services[serviceID] = entry
	r.mu.Unlock()

	// Pump provider responses into the central inbox until the session ends.
	go func() {
		for {
			select {
			case <-entry.done:
				return
			case <-r.quit:
				return
			case resp := <-responses:
				select {
				case r.inbox <- envelope{response: resp}:
				case <-r.quit:
					return
				}
			}
		}
	}()

	return &ServiceConn{Requests: entry.requests, Responses: responses, Done: entry.done}, nil
}

// DropService removes the registration for serviceID and releases its
// session. Returns ErrServiceNotFound when no registration exists so
// callers can detect a double drop.
func (r *LocalRouter) DropService(serviceID string) error {
	r.mu.Lock()
	entry, ok := r.services[serviceID]
	if ok {
		delete(r.services, serviceID)
	}
	r.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrServiceNotFound, "could not drop %q", serviceID)
	}
	entry.close()
	log.WithField("serviceID", serviceID).Info("Service dropped")
	return nil
}

// RouteRequest registers req's id in the client registry, enqueues the
// request for dispatch, and returns the stream its responses arrive on.
func (r *LocalRouter) RouteRequest(req *Request) (*ResponseStream, error) {
	entry := &clientEntry{
		responses: make(chan *Response, clientBufferSize),
		done:      make(chan struct{}),
	}
	out := make(chan *Response, 1)

	r.mu.Lock()
	r.clients[req.RequestID] = entry
	r.mu.Unlock()

	// The relay owns ordered delivery for this request id. Incoming
	// responses are pulled into a queue the moment they arrive so the
	// dispatch loop is never held up by a client that reads slowly, and the
	// queue feeds the stream strictly in arrival order. The relay terminates
	// after delivering a stream-done response or when the client closes the
	// stream, and removes the registry entry on the way out.
	go func() {
		defer func() {
			r.mu.Lock()
			if r.clients[req.RequestID] == entry {
				delete(r.clients, req.RequestID)
			}
			r.mu.Unlock()
			entry.close()
		}()
		var queue []*Response
		for {
			var deliver chan<- *Response
			var next *Response
			if len(queue) > 0 {
				deliver = out
				next = queue[0]
			}
			select {
			case <-entry.done:
				return
			case resp := <-entry.responses:
				queue = append(queue, resp)
			case deliver <- next:
				queue = queue[1:]
				if next.StreamDone {
					close(out)
					return
				}
			}
		}
	}()

	select {
	case r.inbox <- envelope{request: req}:
	case <-r.quit:
		entry.close()
		return nil, errors.New("router is not running")
	}

	return &ResponseStream{C: out, done: entry.done, once: &entry.once}, nil
}
