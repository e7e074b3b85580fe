// Package proxy implements the provider side of the network: it subscribes
// to an aimo node over WebSocket, forwards each routed request to a local
// OpenAI compatible endpoint, and ships the responses back, chunk by chunk
// for streamed completions.
package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aimo-network/aimo/router"
)

var log = logrus.WithField("prefix", "proxy")

// reconnectInterval is how long the proxy waits before redialing the node
// after a dropped session.
const reconnectInterval = 5 * time.Second

// subscribePath is the node's provider WebSocket endpoint.
const subscribePath = "/api/v1/providers/subscribe"

// Config holds the proxy's connection parameters.
type Config struct {
	// NodeURL is the base URL of the aimo node, http or https.
	NodeURL string
	// SecretKey is the encoded secret key authenticating this provider.
	SecretKey string
	// EndpointURL is the base URL of the local inference endpoint.
	EndpointURL string
	// APIKey, if set, is sent as a bearer token to the local endpoint.
	APIKey string
}

// Service maintains the provider session against the node. It reconnects
// until stopped.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	client   *http.Client
	exited   chan struct{}
	startErr error
}

// New validates the config and builds a proxy service.
func New(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("a secret key is required to subscribe as a provider")
	}
	if _, err := subscribeURL(cfg.NodeURL); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		client: &http.Client{},
		exited: make(chan struct{}),
	}, nil
}

// subscribeURL rewrites the node's base URL into the WebSocket endpoint.
func subscribeURL(nodeURL string) (string, error) {
	u, err := url.Parse(nodeURL)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse node url %s", nodeURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported node url scheme %q", u.Scheme)
	}
	u.Path = subscribePath
	return u.String(), nil
}

// Start runs the subscribe loop until Stop is called.
func (s *Service) Start() {
	go func() {
		defer close(s.exited)
		for {
			if err := s.runSession(); err != nil {
				log.WithError(err).Warn("Provider session ended")
			}
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(reconnectInterval):
			}
		}
	}()
}

// Stop tears the session down and waits for the subscribe loop to exit.
func (s *Service) Stop() error {
	s.cancel()
	<-s.exited
	return nil
}

// Status returns the last session error once the loop has exited.
func (s *Service) Status() error {
	select {
	case <-s.exited:
		return errors.New("proxy is not running")
	default:
		return nil
	}
}

// runSession dials the node and serves requests until the connection drops
// or the service stops.
func (s *Service) runSession() error {
	target, err := subscribeURL(s.cfg.NodeURL)
	if err != nil {
		return err
	}
	header := http.Header{"Authorization": []string{"Bearer " + s.cfg.SecretKey}}
	conn, resp, err := websocket.DefaultDialer.DialContext(s.ctx, target, header)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "could not subscribe to %s, status %s", target, resp.Status)
		}
		return errors.Wrapf(err, "could not subscribe to %s", target)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close node connection")
		}
	}()
	log.WithField("node", s.cfg.NodeURL).Info("Subscribed to node")

	// The websocket allows one concurrent writer, so responses funnel
	// through a single send goroutine.
	send := make(chan *router.Response, 16)
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case resp := <-send:
				if err := conn.WriteJSON(resp); err != nil {
					return errors.Wrap(err, "could not write response frame")
				}
			}
		}
	})
	g.Go(func() error {
		for {
			messageType, frame, err := conn.ReadMessage()
			if err != nil {
				return errors.Wrap(err, "could not read request frame")
			}
			if messageType != websocket.TextMessage {
				continue
			}
			req := &router.Request{}
			if err := json.Unmarshal(frame, req); err != nil {
				log.WithError(err).Debug("Could not deserialize request frame")
				continue
			}
			log.WithFields(logrus.Fields{
				"requestID":   req.RequestID,
				"requestType": req.RequestType,
			}).Debug("Serving request")
			go s.serveRequest(ctx, req, send)
		}
	})

	// Unblock the read loop when the service stops.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	err = g.Wait()
	if s.ctx.Err() != nil {
		return nil
	}
	return err
}

// enqueue hands a response frame to the session writer.
func enqueue(ctx context.Context, send chan<- *router.Response, resp *router.Response) bool {
	select {
	case send <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}
