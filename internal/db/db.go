// Package db implements the snapshot persistence backends for the store.
package db

import (
	"context"
	"fmt"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// Backend persists store snapshots and reports its own health.
type Backend interface {
	data.Snapshotter

	// Ping reports whether the backend can currently serve Save and Load.
	Ping(ctx context.Context) error

	// Close releases connections and file handles.
	Close(ctx context.Context) error
}

// Supported driver names.
const (
	DriverFile   = "file"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// New opens the backend named by driver. dataSource is a file path for the
// file driver and a connection URI for the mongo driver; database is only
// used by mongo.
func New(ctx context.Context, driver, dataSource, database string) (Backend, error) {
	switch driver {
	case DriverFile:
		return NewFile(dataSource)
	case DriverMongo:
		return NewMongo(ctx, dataSource, database)
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}
