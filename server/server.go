// Package server exposes the node's HTTP API: key utilities, the
// authenticated OpenAI-compatible completion endpoint, and the WebSocket
// endpoint providers subscribe on.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/aimo-network/aimo/db"
	"github.com/aimo-network/aimo/router"
)

var log = logrus.WithField("prefix", "server")

// DefaultRequestTimeout is the coarse wall-clock timeout applied to every
// HTTP request.
const DefaultRequestTimeout = 30 * time.Second

// admittedScopeTag is the only envelope tag the server boundary accepts.
const admittedScopeTag = "dev"

// Config holds the server's listen address and HTTP policy knobs.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server serves the node's HTTP API on top of a Router and the revocation
// database.
type Server struct {
	cfg          *Config
	broker       router.Router
	database     db.Database
	handler      http.Handler
	server       *http.Server
	upgrader     websocket.Upgrader
	startFailure error
}

// New builds a server around the given router and database handles.
func New(cfg *Config, broker router.Router, database db.Database) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		cfg:      cfg,
		broker:   broker,
		database: database,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/ping", s.Ping).Methods(http.MethodGet)
	api.HandleFunc("/keys/metadata_bytes", s.MetadataBytes).Methods(http.MethodGet)
	api.HandleFunc("/keys/generate", s.GenerateKey).Methods(http.MethodPost)
	api.HandleFunc("/keys/verify", s.VerifyKey).Methods(http.MethodPost)
	api.HandleFunc("/keys/revoke", s.RevokeKey).Methods(http.MethodPost)
	api.Handle("/chat/completions", s.authMiddleware(http.HandlerFunc(s.ChatCompletions))).Methods(http.MethodPost)
	api.Handle("/providers/subscribe", s.authMiddleware(http.HandlerFunc(s.SubscribeProvider)))

	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}).Handler(r)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       cfg.RequestTimeout,
		ReadHeaderTimeout: cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
		IdleTimeout:       2 * cfg.RequestTimeout,
	}
	return s
}

// Start the HTTP server and begin listening.
func (s *Server) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Info("API server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Could not listen and serve")
			s.startFailure = err
		}
	}()
}

// Stop shuts the server down, draining in-flight requests within the
// request timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports a listen failure if one occurred.
func (s *Server) Status() error {
	return s.startFailure
}

// Ping answers liveness probes.
func (s *Server) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("pong")); err != nil {
		log.WithError(err).Debug("Could not write response")
	}
}
