package main

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/PaulBabatuyi/streams/internal/config"
	"github.com/PaulBabatuyi/streams/internal/middleware"
)

// newRouter returns the API handler with the middleware chain applied,
// innermost first: instrumentation, request logging, request id,
// compression and panic recovery.
func newRouter(a *api, logger *log.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Instrument)
	a.routes(router)

	h := middleware.Logging(logger)(router)
	h = middleware.RequestID(h)
	h = handlers.CompressHandler(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

// httpServer is the API server.
type httpServer struct {
	cfg    *config.Config
	server *http.Server
}

func newHTTPServer(cfg *config.Config, a *api, logger *log.Logger) *httpServer {
	logger = logger.WithPrefix("http")
	return &httpServer{
		cfg: cfg,
		server: &http.Server{
			Addr:              cfg.HTTP.ListenAddr,
			Handler:           newRouter(a, logger),
			ReadHeaderTimeout: time.Second * 10,
			IdleTimeout:       time.Second * 60,
			MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
			ErrorLog:          logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
		},
	}
}

// ListenAndServe serves TLS when a certificate is configured.
func (s *httpServer) ListenAndServe() error {
	if s.cfg.HTTP.TLSCertPath != "" && s.cfg.HTTP.TLSKeyPath != "" {
		return s.server.ListenAndServeTLS(s.cfg.HTTP.TLSCertPath, s.cfg.HTTP.TLSKeyPath)
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Hijacked websocket
// connections are not tracked by net/http; the hub closes those.
func (s *httpServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close closes the server.
func (s *httpServer) Close() error {
	return s.server.Close()
}
