package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// File stores the snapshot as one bson document on disk. Writes go to a
// temporary file that is renamed over the target, so a crash mid-write
// leaves the previous snapshot intact.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File backend writing to path, creating its directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file backend needs a data source path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{path: path}, nil
}

// Path returns the snapshot location.
func (f *File) Path() string { return f.path }

// Save encodes and atomically replaces the snapshot file.
func (f *File) Save(_ context.Context, snap *data.Snapshot) error {
	b, err := bson.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(b); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// Load decodes the snapshot file, nil when it does not exist yet.
func (f *File) Load(context.Context) (*data.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap data.Snapshot
	if err := bson.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return &snap, nil
}

// Ping checks the snapshot directory is still there.
func (f *File) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(f.path))
	return err
}

func (f *File) Close(context.Context) error { return nil }
