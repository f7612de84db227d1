// Package data provides the workspace entity model and the shared store.
package data

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store guards the single workspace State. Every API call runs inside exactly
// one View or Update, which is the whole transaction boundary: an Update
// either returns an error before mutating anything, or commits and persists.
// A commit whose save fails is rolled back to the last saved state.
type Store struct {
	mu    sync.RWMutex
	state *State

	// snap is the persistence backend, nil keeps the store purely in memory.
	snap Snapshotter

	// saved is the bson encoding of the state as of the last successful
	// save. nil means the empty state.
	saved []byte

	// onCommit is called with the state after every successful Update.
	onCommit func(*State)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSnapshotter persists every committed Update through s.
func WithSnapshotter(s Snapshotter) StoreOption {
	return func(st *Store) { st.snap = s }
}

// WithCommitHook registers fn to observe the state after each commit.
func WithCommitHook(fn func(*State)) StoreOption {
	return func(st *Store) { st.onCommit = fn }
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{state: NewState()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open restores the last persisted snapshot, if any.
func (s *Store) Open(ctx context.Context) error {
	if s.snap == nil {
		return nil
	}
	snap, err := s.snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFromSnapshot(snap)
	s.remember(s.state.Snapshot())
	s.commitHook()
	return nil
}

// View runs fn with shared access. fn must not mutate the state.
func (s *Store) View(fn func(*State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Update runs fn with exclusive access and persists the state when fn
// succeeds. fn must validate everything before its first write. If the save
// fails, the changes made by fn are discarded.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.state); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Clear resets the workspace to empty and persists the empty state. The
// workspace is left as it was if the save fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = NewState()
	return s.persist(ctx)
}

// Backup writes the current state through an arbitrary snapshotter without
// blocking readers.
func (s *Store) Backup(ctx context.Context, to Snapshotter) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return to.Save(ctx, s.state.Snapshot())
}

// persist saves the state. The save outlives ctx's cancellation: a client
// that goes away mid-request must not leave memory ahead of the backend.
func (s *Store) persist(ctx context.Context) error {
	if s.snap != nil {
		snap := s.state.Snapshot()
		if err := s.snap.Save(context.WithoutCancel(ctx), snap); err != nil {
			s.rollback()
			return fmt.Errorf("save snapshot: %w", err)
		}
		s.remember(snap)
	}
	s.commitHook()
	return nil
}

func (s *Store) remember(snap *Snapshot) {
	if s.snap == nil {
		return
	}
	b, err := bson.Marshal(snap)
	if err != nil {
		// the backends encode the same document, so a save would have failed too
		return
	}
	s.saved = b
}

// rollback replaces the state with the last saved one.
func (s *Store) rollback() {
	if s.saved == nil {
		s.state = NewState()
		return
	}
	var snap Snapshot
	if err := bson.Unmarshal(s.saved, &snap); err != nil {
		return
	}
	s.state = StateFromSnapshot(&snap)
}

func (s *Store) commitHook() {
	if s.onCommit != nil {
		s.onCommit(s.state)
	}
}
