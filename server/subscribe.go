package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aimo-network/aimo/router"
)

// SubscribeProvider upgrades the connection to a bidirectional message
// stream and registers the caller's wallet public key as a service id. One
// wallet holds at most one provider session; reconnecting replaces the
// prior session.
//
// ANY /api/v1/providers/subscribe
func (s *Server) SubscribeProvider(w http.ResponseWriter, r *http.Request) {
	key := secretKeyFromContext(r.Context())
	if key == nil {
		handleError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Could not upgrade provider connection")
		return
	}
	// The hijacked connection inherits the server's request deadlines, which
	// would cut a long-lived provider session short.
	if err := conn.UnderlyingConn().SetDeadline(time.Time{}); err != nil {
		log.WithError(err).Debug("Could not clear connection deadline")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Could not close provider connection")
		}
	}()

	serviceConn, err := s.broker.RegisterService(key.Signer)
	if err != nil {
		log.WithError(err).Warn("Could not register provider service")
		if err := conn.WriteMessage(websocket.TextMessage, []byte("500: failed to register service")); err != nil {
			log.WithError(err).Debug("Connection closed")
		}
		return
	}
	log.WithField("serviceID", key.Signer).Info("Provider subscribed")

	// Router to socket. Exits when the session is dropped or replaced, or
	// when a write fails; closing the connection unblocks the read pump.
	go func() {
		defer func() {
			_ = conn.Close()
		}()
		for {
			select {
			case <-serviceConn.Done:
				return
			case req := <-serviceConn.Requests:
				frame, err := json.Marshal(req)
				if err != nil {
					log.WithError(err).Debug("Could not serialize request frame")
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					log.WithField("serviceID", key.Signer).Warn("Provider disconnected")
					return
				}
			}
		}
	}()

	// Socket to router. Frames that fail to deserialize are logged and
	// dropped.
	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).WithField("serviceID", key.Signer).Debug("Provider read loop ended")
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		resp := &router.Response{}
		if err := json.Unmarshal(frame, resp); err != nil {
			log.WithError(err).Debug("Could not deserialize response frame")
			continue
		}
		select {
		case serviceConn.Responses <- resp:
		case <-serviceConn.Done:
		}
	}

	// Skip the drop when a newer session already replaced this one,
	// otherwise we would tear down the replacement's registration.
	select {
	case <-serviceConn.Done:
	default:
		if err := s.broker.DropService(key.Signer); err != nil {
			log.WithError(err).Warn("Could not drop service after connection close")
		}
	}
	log.WithField("serviceID", key.Signer).Info("Provider session closed")
}
