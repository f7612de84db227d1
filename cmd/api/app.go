package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/PaulBabatuyi/streams/internal/config"
	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/db"
	"github.com/PaulBabatuyi/streams/internal/jobs"
	logpkg "github.com/PaulBabatuyi/streams/internal/log"
	"github.com/PaulBabatuyi/streams/internal/metrics"
	"github.com/PaulBabatuyi/streams/internal/scheduler"
	"github.com/PaulBabatuyi/streams/internal/streams"
)

// app is one running workspace server and everything it owns.
type app struct {
	cfg    *config.Config
	logger *log.Logger

	backend  db.Backend
	store    *data.Store
	timers   *scheduler.Timer
	throttle *logpkg.Throttle
	hub      *ConnectionHub
	svc      *streams.Service
	cron     *jobs.Scheduler

	http  *httpServer
	grpc  *grpcServer
	stats *metrics.StatsServer
}

// newApp opens the backend, restores the store and wires the servers.
// opts are applied after the defaults, so tests can swap the scheduler
// and the clock.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...streams.Option) (*app, error) {
	backend, err := db.New(ctx, cfg.DB.Driver, cfg.DB.DataSource, cfg.DB.Database)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	store := data.NewStore(
		data.WithSnapshotter(backend),
		data.WithCommitHook(metrics.Observe),
	)
	if err := store.Open(ctx); err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}

	tokens, err := cfg.Tokens()
	if err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger.WithPrefix("server"),
		backend:  backend,
		store:    store,
		timers:   scheduler.NewTimer(logger),
		throttle: logpkg.NewThrottle(time.Minute, 3, time.Minute),
		hub:      NewConnectionHub(logger),
	}

	a.svc = streams.New(store, tokens, append([]streams.Option{
		streams.WithScheduler(a.timers),
		streams.WithLogger(logger),
		streams.WithNotifier(a.hub),
		streams.WithThrottle(a.throttle),
	}, opts...)...)

	a.cron = jobs.NewScheduler(logger)
	if err := a.registerJobs(ctx); err != nil {
		a.logger.Warn("error adding cron job", "job", "backup", "err", err)
	}

	handler := &api{svc: a.svc, hub: a.hub, backend: backend, logger: logger.WithPrefix("http")}
	a.http = newHTTPServer(cfg, handler, logger)

	if cfg.GRPC.ListenAddr != "" {
		a.grpc, err = newGRPCServer(cfg, logger)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("create grpc server: %w", err)
		}
	}
	if cfg.Stats.ListenAddr != "" {
		a.stats, err = metrics.NewStatsServer(cfg)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("create stats server: %w", err)
		}
	}

	return a, nil
}

// registerJobs adds the snapshot backup. The memory driver has nowhere
// durable to back up to, so it runs without one.
func (a *app) registerJobs(ctx context.Context) error {
	var to data.Snapshotter
	switch b := a.backend.(type) {
	case *db.File:
		f, err := db.NewFile(a.cfg.BackupPath())
		if err != nil {
			return err
		}
		to = f
	case *db.Mongo:
		to = b.WithDocument("backup")
	default:
		return nil
	}
	_, err := a.cron.Register(ctx, "backup", jobs.NewBackup(a.store, to, a.cfg.Jobs.Backup, a.logger))
	return err
}

// Start resumes deferred work and serves until every server has stopped.
// A server that fails closes the others.
func (a *app) Start(ctx context.Context) error {
	if err := a.svc.Resume(); err != nil {
		return fmt.Errorf("resume deferred work: %w", err)
	}

	parent := ctx
	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		if parent.Err() == nil {
			a.closeListeners()
		}
		return nil
	})

	errg.Go(func() error {
		a.logger.Print("Starting HTTP server", "addr", a.cfg.HTTP.ListenAddr)
		if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.grpc != nil {
		errg.Go(func() error {
			a.logger.Print("Starting gRPC server", "addr", a.cfg.GRPC.ListenAddr)
			if err := a.grpc.ListenAndServe(); !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		errg.Go(func() error {
			a.grpc.watchBackend(ctx, a.backend)
			return nil
		})
	}

	if a.stats != nil {
		errg.Go(func() error {
			a.logger.Print("Starting Stats server", "addr", a.cfg.Stats.ListenAddr)
			if err := a.stats.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	a.cron.Start()
	return errg.Wait()
}

// Shutdown stops the listeners and the background work, then closes the
// backend. Pending deferred sends stay in the snapshot and are resumed on
// the next start.
func (a *app) Shutdown(ctx context.Context) error {
	errg, gctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return a.http.Shutdown(gctx)
	})
	if a.grpc != nil {
		errg.Go(func() error {
			return a.grpc.Shutdown(gctx)
		})
	}
	if a.stats != nil {
		errg.Go(func() error {
			return a.stats.Shutdown(gctx)
		})
	}
	err := errg.Wait()

	_ = a.hub.Close()
	a.cron.Shutdown()
	if terr := a.timers.Shutdown(ctx); terr != nil {
		a.logger.Warn("deferred tasks still running at shutdown", "err", terr)
	}
	a.throttle.Stop()
	if berr := a.backend.Close(ctx); berr != nil && err == nil {
		err = berr
	}
	return err
}

func (a *app) closeListeners() {
	_ = a.http.Close()
	if a.grpc != nil {
		a.grpc.server.Stop()
	}
	if a.stats != nil {
		_ = a.stats.Close()
	}
}

// close releases what newApp acquired when setup fails half way.
func (a *app) close(ctx context.Context) {
	a.throttle.Stop()
	_ = a.backend.Close(ctx)
}
