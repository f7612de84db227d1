package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PaulBabatuyi/streams/internal/config"
)

// StatsServer is a server for collecting and reporting statistics.
type StatsServer struct { //nolint:revive
	server *http.Server
}

// NewStatsServer returns a new StatsServer listening on cfg.Stats.ListenAddr.
func NewStatsServer(cfg *config.Config) (*StatsServer, error) {
	if cfg == nil {
		return nil, config.ErrNilConfig
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &StatsServer{
		server: &http.Server{
			Addr:              cfg.Stats.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: time.Second * 10,
			ReadTimeout:       time.Second * 10,
			WriteTimeout:      time.Second * 10,
			MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
		},
	}, nil
}

// Handler returns the server's handler.
func (s *StatsServer) Handler() http.Handler { return s.server.Handler }

// ListenAndServe starts the StatsServer.
func (s *StatsServer) ListenAndServe() error {
	return s.server.ListenAndServe() //nolint:wrapcheck
}

// Shutdown gracefully shuts down the StatsServer.
func (s *StatsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx) //nolint:wrapcheck
}

// Close closes the StatsServer.
func (s *StatsServer) Close() error {
	return s.server.Close() //nolint:wrapcheck
}
