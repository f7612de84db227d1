package jobs

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PaulBabatuyi/streams/internal/data"
)

var backupCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streams",
	Subsystem: "jobs",
	Name:      "backup_total",
	Help:      "The total number of snapshot backups by outcome",
}, []string{"outcome"})

// Backup copies the store's current state to a second snapshotter.
type Backup struct {
	store  *data.Store
	to     data.Snapshotter
	spec   string
	logger *log.Logger
}

var _ Runner = (*Backup)(nil)

// NewBackup returns a backup job writing store to to on spec.
func NewBackup(store *data.Store, to data.Snapshotter, spec string, logger *log.Logger) *Backup {
	return &Backup{store: store, to: to, spec: spec, logger: logger.WithPrefix("backup")}
}

// Spec implements Runner.
func (b *Backup) Spec() string { return b.spec }

// Func implements Runner.
func (b *Backup) Func(ctx context.Context) func() {
	return func() {
		if err := b.Run(ctx); err != nil {
			b.logger.Error("snapshot backup failed", "err", err)
		}
	}
}

// Run takes one backup.
func (b *Backup) Run(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := b.store.Backup(ctx, b.to); err != nil {
		backupCounter.WithLabelValues("failed").Inc()
		return err
	}
	backupCounter.WithLabelValues("ok").Inc()
	b.logger.Debug("snapshot backed up", "time", time.Since(start))
	return nil
}
