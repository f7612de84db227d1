package data

import (
	"maps"
	"slices"
)

// State is every entity collection of the workspace plus the id counters.
// It is only ever touched while the owning Store's lock is held.
type State struct {
	Users     map[int]*User
	Channels  map[int]*Channel
	DMs       map[int]*DM
	Messages  map[int]*Message
	Pending   map[int]*Pending
	Workspace WorkspaceStats

	NextUserID    int
	NextChannelID int
	NextDMID      int
	NextMessageID int
	NextSessionID int
}

// NewState returns an empty workspace.
func NewState() *State {
	return &State{
		Users:    map[int]*User{},
		Channels: map[int]*Channel{},
		DMs:      map[int]*DM{},
		Messages: map[int]*Message{},
		Pending:  map[int]*Pending{},
	}
}

// ReserveMessageID hands out the next message id. Ids are global across
// channels and DMs and never reused.
func (s *State) ReserveMessageID() int {
	id := s.NextMessageID
	s.NextMessageID++
	return id
}

// ReserveSessionID hands out the next session id.
func (s *State) ReserveSessionID() int {
	s.NextSessionID++
	return s.NextSessionID
}

// ChannelIDs returns channel ids in creation order.
func (s *State) ChannelIDs() []int { return sortedKeys(s.Channels) }

// DMIDs returns dm ids in creation order.
func (s *State) DMIDs() []int { return sortedKeys(s.DMs) }

// UserIDs returns user ids in registration order.
func (s *State) UserIDs() []int { return sortedKeys(s.Users) }

// PendingIDs returns the reserved ids of deferred messages.
func (s *State) PendingIDs() []int { return sortedKeys(s.Pending) }

// ActiveUser returns the user with id if they exist and were not removed.
func (s *State) ActiveUser(id int) (*User, bool) {
	u, ok := s.Users[id]
	if !ok || u.Removed {
		return nil, false
	}
	return u, true
}

// Container returns the channel or dm of the given kind.
func (s *State) Container(kind ContainerKind, id int) (Container, bool) {
	switch kind {
	case KindChannel:
		if c, ok := s.Channels[id]; ok {
			return c, true
		}
	case KindDM:
		if d, ok := s.DMs[id]; ok {
			return d, true
		}
	}
	return nil, false
}

// GlobalOwners counts active global owners.
func (s *State) GlobalOwners() int {
	n := 0
	for _, u := range s.Users {
		if !u.Removed && u.IsGlobalOwner {
			n++
		}
	}
	return n
}

func sortedKeys[V any](m map[int]V) []int { return slices.Sorted(maps.Keys(m)) }
