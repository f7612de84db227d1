package streams

import (
	"context"
	"slices"
	"strings"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// DMDetails is the public description of a dm.
type DMDetails struct {
	Name    string         `json:"name"`
	Members []data.Profile `json:"members"`
}

// CreateDM opens a dm between the caller and userIDs. The caller owns it and
// its name is the sorted handles of everyone in it.
func (s *Service) CreateDM(ctx context.Context, token string, userIDs []int) (int, error) {
	var dmID int
	err := s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}

		invitees := make([]*data.User, 0, len(userIDs))
		for i, id := range userIDs {
			v, ok := t.ActiveUser(id)
			if !ok || id == u.ID {
				return inputErrorf("invalid u_id %d", id)
			}
			if slices.Contains(userIDs[:i], id) {
				return inputErrorf("duplicate u_id %d", id)
			}
			invitees = append(invitees, v)
		}

		members := append([]int{}, userIDs...)
		members = append(members, u.ID)
		handles := []string{u.Handle}
		for _, v := range invitees {
			handles = append(handles, v.Handle)
		}
		slices.Sort(handles)

		dmID = t.NextDMID
		t.NextDMID++
		d := &data.DM{
			ID:          dmID,
			Name:        strings.Join(handles, ", "),
			Owner:       u.ID,
			MemberList:  members,
			MessageList: []int{},
		}
		t.DMs[dmID] = d

		u.Stats.DMsJoined = data.Bump(u.Stats.DMsJoined, 1, t.now)
		for _, v := range invitees {
			v.Stats.DMsJoined = data.Bump(v.Stats.DMsJoined, 1, t.now)
			t.notifyAdded(u, v, d)
		}
		t.Workspace.DMsExist = data.Bump(t.Workspace.DMsExist, 1, t.now)
		return nil
	})
	return dmID, err
}

// ListDMs returns the dms the caller belongs to.
func (s *Service) ListDMs(token string) ([]data.DMSummary, error) {
	var out []data.DMSummary
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		out = []data.DMSummary{}
		for _, id := range t.DMIDs() {
			if d := t.DMs[id]; d.HasMember(u.ID) {
				out = append(out, data.DMSummary{DMID: d.ID, Name: d.Name})
			}
		}
		return nil
	})
	return out, err
}

// DMDetails describes a dm the caller belongs to.
func (s *Service) DMDetails(token string, dmID int) (*DMDetails, error) {
	var out *DMDetails
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		d, err := t.dm(dmID)
		if err != nil {
			return err
		}
		if !d.HasMember(u.ID) {
			return accessErrorf("not a member of dm %d", dmID)
		}
		out = &DMDetails{Name: d.Name, Members: t.profiles(d.MemberList)}
		return nil
	})
	return out, err
}

// LeaveDM removes the caller from a dm. Ownership stays with the creator
// even when the creator leaves.
func (s *Service) LeaveDM(ctx context.Context, token string, dmID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		d, err := t.dm(dmID)
		if err != nil {
			return err
		}
		if !d.HasMember(u.ID) {
			return accessErrorf("not a member of dm %d", dmID)
		}
		d.RemoveMember(u.ID)
		u.Stats.DMsJoined = data.Bump(u.Stats.DMsJoined, -1, t.now)
		return nil
	})
}

// RemoveDM deletes a dm and every message in it. Only the creator may.
func (s *Service) RemoveDM(ctx context.Context, token string, dmID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		d, err := t.dm(dmID)
		if err != nil {
			return err
		}
		if !d.OwnerCapable(u) {
			return accessErrorf("only the creator can remove dm %d", dmID)
		}

		for _, id := range d.MemberList {
			if v, ok := t.Users[id]; ok {
				v.Stats.DMsJoined = data.Bump(v.Stats.DMsJoined, -1, t.now)
			}
		}
		removed := len(d.MessageList)
		for _, id := range d.MessageList {
			delete(t.Messages, id)
		}
		// deferred messages still pending for this dm are dropped on delivery
		delete(t.DMs, dmID)

		t.Workspace.DMsExist = data.Bump(t.Workspace.DMsExist, -1, t.now)
		if removed > 0 {
			t.Workspace.MessagesExist = data.Bump(t.Workspace.MessagesExist, -removed, t.now)
		}
		return nil
	})
}
