package streams

import "github.com/PaulBabatuyi/streams/internal/data"

// locate finds a message the user can see. A message that exists in a
// container the user is not part of is reported exactly like a missing one.
func (t *tx) locate(u *data.User, messageID int) (*data.Message, data.Container, error) {
	m, ok := t.Messages[messageID]
	if !ok {
		return nil, nil, inputErrorf("message %d not found", messageID)
	}
	c, ok := t.Container(m.Kind, m.ContainerID)
	if !ok || !c.HasMember(u.ID) {
		return nil, nil, inputErrorf("message %d not found", messageID)
	}
	return m, c, nil
}

// memberContainer returns the container if it exists and u belongs to it.
func (t *tx) memberContainer(u *data.User, kind data.ContainerKind, id int) (data.Container, error) {
	c, ok := t.Container(kind, id)
	if !ok {
		return nil, inputErrorf("invalid %s_id %d", kind, id)
	}
	if !c.HasMember(u.ID) {
		return nil, accessErrorf("not a member of %s %d", kind, id)
	}
	return c, nil
}

// channel returns the channel if it exists.
func (t *tx) channel(id int) (*data.Channel, error) {
	c, ok := t.Channels[id]
	if !ok {
		return nil, inputErrorf("invalid channel_id %d", id)
	}
	return c, nil
}

// dm returns the dm if it exists.
func (t *tx) dm(id int) (*data.DM, error) {
	d, ok := t.DMs[id]
	if !ok {
		return nil, inputErrorf("invalid dm_id %d", id)
	}
	return d, nil
}

// IsOwnerCapable reports whether userID has elevated rights over the
// container. It is false for unknown users and containers.
func (s *Service) IsOwnerCapable(userID int, kind data.ContainerKind, containerID int) bool {
	var ok bool
	_ = s.view(func(t *tx) error {
		u, found := t.ActiveUser(userID)
		if !found {
			return nil
		}
		c, found := t.Container(kind, containerID)
		ok = found && c.OwnerCapable(u)
		return nil
	})
	return ok
}
