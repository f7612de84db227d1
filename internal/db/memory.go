package db

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// Memory keeps an encoded copy of the last snapshot. It round-trips through
// bson so a reload never aliases live store entities.
type Memory struct {
	mu  sync.Mutex
	raw []byte
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, snap *data.Snapshot) error {
	b, err := bson.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.mu.Lock()
	m.raw = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(context.Context) (*data.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	var snap data.Snapshot
	if err := bson.Unmarshal(m.raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }
