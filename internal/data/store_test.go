package data

import (
	"context"
	"errors"
	"testing"
)

// memSnap keeps the last saved snapshot in memory.
type memSnap struct {
	saved  *Snapshot
	saves  int
	err    error
	ctxErr error
}

func (m *memSnap) Save(ctx context.Context, snap *Snapshot) error {
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.saved = snap
	return nil
}

func (m *memSnap) Load(context.Context) (*Snapshot, error) { return m.saved, nil }

func TestStoreUpdatePersists(t *testing.T) {
	snap := &memSnap{}
	commits := 0
	s := NewStore(WithSnapshotter(snap), WithCommitHook(func(*State) { commits++ }))
	ctx := context.Background()

	err := s.Update(ctx, func(st *State) error {
		st.Users[0] = &User{ID: 0, Handle: "alice", IsGlobalOwner: true}
		st.NextUserID = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if snap.saves != 1 || commits != 1 {
		t.Fatalf("expected one save and one commit, got saves=%d commits=%d", snap.saves, commits)
	}
	if len(snap.saved.Users) != 1 || snap.saved.Users[0].Handle != "alice" {
		t.Fatalf("snapshot users mismatch: %+v", snap.saved.Users)
	}
}

func TestStoreUpdateErrorSkipsPersist(t *testing.T) {
	snap := &memSnap{}
	s := NewStore(WithSnapshotter(snap))

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(*State) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if snap.saves != 0 {
		t.Fatalf("failed update must not persist, got %d saves", snap.saves)
	}
}

func TestStoreSaveErrorIsWrapped(t *testing.T) {
	cause := errors.New("disk full")
	s := NewStore(WithSnapshotter(&memSnap{err: cause}))

	err := s.Update(context.Background(), func(*State) error { return nil })
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped save error, got %v", err)
	}
}

func TestStoreOpenRestoresCounters(t *testing.T) {
	snap := &memSnap{}
	ctx := context.Background()

	first := NewStore(WithSnapshotter(snap))
	_ = first.Update(ctx, func(st *State) error {
		st.Channels[0] = &Channel{ID: 0, Name: "general", AllMembers: []int{0}, OwnerMembers: []int{0}}
		st.NextChannelID = 1
		id := st.ReserveMessageID()
		st.Messages[id] = &Message{ID: id, Text: "hi", Kind: KindChannel}
		st.Channels[0].AppendMessage(id)
		return nil
	})

	second := NewStore(WithSnapshotter(snap))
	if err := second.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = second.View(func(st *State) error {
		if st.NextMessageID != 1 || st.NextChannelID != 1 {
			t.Fatalf("counters not restored: msg=%d chan=%d", st.NextMessageID, st.NextChannelID)
		}
		c, ok := st.Container(KindChannel, 0)
		if !ok || len(c.MessageIDs()) != 1 {
			t.Fatalf("channel not restored")
		}
		return nil
	})
}

func TestStoreOpenEmpty(t *testing.T) {
	s := NewStore(WithSnapshotter(&memSnap{}))
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open on empty backend failed: %v", err)
	}
	_ = s.View(func(st *State) error {
		if len(st.Users) != 0 {
			t.Fatalf("expected empty state")
		}
		return nil
	})
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Update(ctx, func(st *State) error {
		st.Users[0] = &User{ID: 0}
		st.NextUserID = 1
		return nil
	})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	_ = s.View(func(st *State) error {
		if len(st.Users) != 0 || st.NextUserID != 0 {
			t.Fatalf("Clear left state behind: %+v", st)
		}
		return nil
	})
}

func TestStoreBackup(t *testing.T) {
	s := NewStore()
	_ = s.Update(context.Background(), func(st *State) error {
		st.DMs[0] = &DM{ID: 0, Name: "a, b", Owner: 0, MemberList: []int{0, 1}}
		return nil
	})

	backup := &memSnap{}
	if err := s.Backup(context.Background(), backup); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if len(backup.saved.DMs) != 1 {
		t.Fatalf("backup missing dm")
	}
}

func TestStoreSaveErrorRollsBack(t *testing.T) {
	snap := &memSnap{}
	commits := 0
	s := NewStore(WithSnapshotter(snap), WithCommitHook(func(*State) { commits++ }))
	ctx := context.Background()

	err := s.Update(ctx, func(st *State) error {
		st.Users[0] = &User{ID: 0, Handle: "alice", IsGlobalOwner: true}
		st.NextUserID = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap.err = errors.New("disk full")
	err = s.Update(ctx, func(st *State) error {
		st.Users[0].Handle = "mallory"
		id := st.ReserveMessageID()
		st.Messages[id] = &Message{ID: id, Author: 0, Text: "lost"}
		st.Pending[id] = &Pending{MessageID: id, Author: 0, Text: "later", SendAt: 10}
		return nil
	})
	if !errors.Is(err, snap.err) {
		t.Fatalf("expected save error, got %v", err)
	}
	if commits != 1 {
		t.Fatalf("failed save must not reach the commit hook, got %d commits", commits)
	}
	_ = s.View(func(st *State) error {
		if st.Users[0].Handle != "alice" {
			t.Fatalf("user change survived a failed save: %q", st.Users[0].Handle)
		}
		if len(st.Messages) != 0 || len(st.Pending) != 0 || st.NextMessageID != 0 {
			t.Fatalf("failed save left state behind: messages=%d pending=%d next=%d",
				len(st.Messages), len(st.Pending), st.NextMessageID)
		}
		return nil
	})

	// a failed Clear keeps the workspace too
	if err := s.Clear(ctx); err == nil {
		t.Fatalf("expected Clear to fail")
	}
	_ = s.View(func(st *State) error {
		if len(st.Users) != 1 {
			t.Fatalf("failed Clear emptied the workspace")
		}
		return nil
	})

	snap.err = nil
	if err := s.Update(ctx, func(st *State) error {
		st.ReserveMessageID()
		return nil
	}); err != nil {
		t.Fatalf("Update after recovery failed: %v", err)
	}
	_ = s.View(func(st *State) error {
		if st.NextMessageID != 1 {
			t.Fatalf("expected message id 0 to be reused after rollback, next=%d", st.NextMessageID)
		}
		return nil
	})
}

func TestStoreSaveErrorBeforeFirstSave(t *testing.T) {
	s := NewStore(WithSnapshotter(&memSnap{err: errors.New("down")}))
	_ = s.Update(context.Background(), func(st *State) error {
		st.Users[0] = &User{ID: 0}
		return nil
	})
	_ = s.View(func(st *State) error {
		if len(st.Users) != 0 {
			t.Fatalf("expected the empty state after a failed first save")
		}
		return nil
	})
}

func TestStoreSaveIgnoresCancellation(t *testing.T) {
	snap := &memSnap{}
	s := NewStore(WithSnapshotter(snap))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Update(ctx, func(st *State) error {
		st.Users[0] = &User{ID: 0}
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if snap.ctxErr != nil {
		t.Fatalf("save saw a cancelled context: %v", snap.ctxErr)
	}
}
