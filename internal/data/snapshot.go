package data

import "context"

// Snapshot is the persisted form of a State. Collections are flattened into
// slices ordered by id so the document does not depend on map key encoding.
type Snapshot struct {
	Users     []*User        `bson:"users"`
	Channels  []*Channel     `bson:"channels"`
	DMs       []*DM          `bson:"dms"`
	Messages  []*Message     `bson:"messages"`
	Pending   []*Pending     `bson:"pending"`
	Workspace WorkspaceStats `bson:"workspace_stats"`

	NextUserID    int `bson:"next_user_id"`
	NextChannelID int `bson:"next_channel_id"`
	NextDMID      int `bson:"next_dm_id"`
	NextMessageID int `bson:"next_message_id"`
	NextSessionID int `bson:"next_session_id"`
}

// Snapshotter persists and restores whole-store snapshots.
type Snapshotter interface {
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns nil and no error when nothing has been saved yet.
	Load(ctx context.Context) (*Snapshot, error)
}

// Snapshot flattens the state. The result shares entity pointers with s, so
// it must be encoded before the lock protecting s is released.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Workspace:     s.Workspace,
		NextUserID:    s.NextUserID,
		NextChannelID: s.NextChannelID,
		NextDMID:      s.NextDMID,
		NextMessageID: s.NextMessageID,
		NextSessionID: s.NextSessionID,
	}
	for _, id := range s.UserIDs() {
		snap.Users = append(snap.Users, s.Users[id])
	}
	for _, id := range s.ChannelIDs() {
		snap.Channels = append(snap.Channels, s.Channels[id])
	}
	for _, id := range s.DMIDs() {
		snap.DMs = append(snap.DMs, s.DMs[id])
	}
	for _, id := range sortedKeys(s.Messages) {
		snap.Messages = append(snap.Messages, s.Messages[id])
	}
	for _, id := range sortedKeys(s.Pending) {
		snap.Pending = append(snap.Pending, s.Pending[id])
	}
	return snap
}

// StateFromSnapshot rebuilds a State.
func StateFromSnapshot(snap *Snapshot) *State {
	s := NewState()
	if snap == nil {
		return s
	}
	for _, u := range snap.Users {
		s.Users[u.ID] = u
	}
	for _, c := range snap.Channels {
		s.Channels[c.ID] = c
	}
	for _, d := range snap.DMs {
		s.DMs[d.ID] = d
	}
	for _, m := range snap.Messages {
		s.Messages[m.ID] = m
	}
	for _, p := range snap.Pending {
		s.Pending[p.MessageID] = p
	}
	s.Workspace = snap.Workspace
	s.NextUserID = snap.NextUserID
	s.NextChannelID = snap.NextChannelID
	s.NextDMID = snap.NextDMID
	s.NextMessageID = snap.NextMessageID
	s.NextSessionID = snap.NextSessionID
	return s
}
