package streams

import (
	"context"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// Permission ids accepted by ChangePermission.
const (
	PermissionOwner  = 1
	PermissionMember = 2
)

// RemoveUser deletes a user from the workspace. Their messages stay, with
// the text replaced; their email and handle become free for reuse.
func (s *Service) RemoveUser(ctx context.Context, token string, userID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !u.IsGlobalOwner {
			return accessErrorf("not a global owner")
		}
		target, ok := t.ActiveUser(userID)
		if !ok {
			return inputErrorf("invalid u_id %d", userID)
		}
		if target.IsGlobalOwner && t.GlobalOwners() == 1 {
			return inputErrorf("user %d is the only global owner", userID)
		}

		for _, c := range t.Channels {
			c.RemoveMember(target.ID)
		}
		for _, d := range t.DMs {
			d.RemoveMember(target.ID)
			if d.Owner == target.ID {
				d.Owner = data.NoOwner
			}
		}
		for _, m := range t.Messages {
			if m.Author == target.ID {
				m.Text = data.RemovedText
			}
		}

		target.Removed = true
		target.IsGlobalOwner = false
		target.NameFirst, target.NameLast = "Removed", "user"
		target.Email, target.Handle = "", ""
		t.revoke(target.ID, target.Sessions...)
		target.Sessions = []int{}
		s.logger.Info("user removed", "u_id", target.ID, "by", u.ID)
		return nil
	})
}

// ChangePermission makes a user a global owner or a plain member.
func (s *Service) ChangePermission(ctx context.Context, token string, userID, permissionID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !u.IsGlobalOwner {
			return accessErrorf("not a global owner")
		}
		target, ok := t.ActiveUser(userID)
		if !ok {
			return inputErrorf("invalid u_id %d", userID)
		}
		if permissionID != PermissionOwner && permissionID != PermissionMember {
			return inputErrorf("invalid permission_id %d", permissionID)
		}
		owner := permissionID == PermissionOwner
		if target.IsGlobalOwner == owner {
			return inputErrorf("user %d already has permission %d", userID, permissionID)
		}
		if !owner && t.GlobalOwners() == 1 {
			return inputErrorf("user %d is the only global owner", userID)
		}
		target.IsGlobalOwner = owner
		return nil
	})
}
