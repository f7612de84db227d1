package streams

import (
	"context"
	"unicode/utf8"

	"github.com/PaulBabatuyi/streams/internal/data"
)

const maxChannelName = 20

// ChannelDetails is the public description of a channel.
type ChannelDetails struct {
	Name         string         `json:"name"`
	IsPublic     bool           `json:"is_public"`
	OwnerMembers []data.Profile `json:"owner_members"`
	AllMembers   []data.Profile `json:"all_members"`
}

// joinChannel adds u to c as a member and records the stat.
func (t *tx) joinChannel(u *data.User, c *data.Channel) {
	c.AddMember(u.ID)
	u.Stats.ChannelsJoined = data.Bump(u.Stats.ChannelsJoined, 1, t.now)
}

// leaveChannel drops u from c's owners and members.
func (t *tx) leaveChannel(u *data.User, c *data.Channel) {
	c.RemoveMember(u.ID)
	u.Stats.ChannelsJoined = data.Bump(u.Stats.ChannelsJoined, -1, t.now)
}

// CreateChannel creates a channel owned by the caller and returns its id.
func (s *Service) CreateChannel(ctx context.Context, token, name string, isPublic bool) (int, error) {
	var channelID int
	err := s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if n := utf8.RuneCountInString(name); n < 1 || n > maxChannelName {
			return inputErrorf("channel name must be 1 to %d characters", maxChannelName)
		}

		channelID = t.NextChannelID
		t.NextChannelID++
		c := &data.Channel{
			ID:           channelID,
			Name:         name,
			IsPublic:     isPublic,
			OwnerMembers: []int{u.ID},
			MessageList:  []int{},
			Standup:      data.Standup{Buffer: []string{}},
		}
		t.Channels[channelID] = c
		t.joinChannel(u, c)
		t.Workspace.ChannelsExist = data.Bump(t.Workspace.ChannelsExist, 1, t.now)
		return nil
	})
	return channelID, err
}

// JoinChannel adds the caller to a channel. Private channels only admit
// global owners.
func (s *Service) JoinChannel(ctx context.Context, token string, channelID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.channel(channelID)
		if err != nil {
			return err
		}
		member := c.HasMember(u.ID)
		if !c.IsPublic && !member && !u.IsGlobalOwner {
			return accessErrorf("channel %d is private", channelID)
		}
		if member {
			return inputErrorf("already a member of channel %d", channelID)
		}
		t.joinChannel(u, c)
		return nil
	})
}

// InviteChannel adds another user to a channel the caller belongs to.
func (s *Service) InviteChannel(ctx context.Context, token string, channelID, userID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.channel(channelID)
		if err != nil {
			return err
		}
		if !c.HasMember(u.ID) {
			return accessErrorf("not a member of channel %d", channelID)
		}
		invitee, ok := t.ActiveUser(userID)
		if !ok {
			return inputErrorf("invalid u_id %d", userID)
		}
		if c.HasMember(invitee.ID) {
			return inputErrorf("user %d is already a member of channel %d", userID, channelID)
		}
		t.joinChannel(invitee, c)
		t.notifyAdded(u, invitee, c)
		return nil
	})
}

// LeaveChannel removes the caller from a channel. Nothing stops the last
// owner from leaving.
func (s *Service) LeaveChannel(ctx context.Context, token string, channelID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.channel(channelID)
		if err != nil {
			return err
		}
		if !c.HasMember(u.ID) {
			return accessErrorf("not a member of channel %d", channelID)
		}
		t.leaveChannel(u, c)
		return nil
	})
}

// AddOwner promotes a member of the channel.
func (s *Service) AddOwner(ctx context.Context, token string, channelID, userID int) error {
	return s.update(ctx, func(t *tx) error {
		c, target, err := s.ownerChange(t, token, channelID, userID)
		if err != nil {
			return err
		}
		if c.IsOwner(target.ID) {
			return inputErrorf("user %d is already an owner", userID)
		}
		c.AddOwner(target.ID)
		return nil
	})
}

// RemoveOwner demotes an owner. The channel's only owner cannot be removed.
func (s *Service) RemoveOwner(ctx context.Context, token string, channelID, userID int) error {
	return s.update(ctx, func(t *tx) error {
		c, target, err := s.ownerChange(t, token, channelID, userID)
		if err != nil {
			return err
		}
		if !c.IsOwner(target.ID) {
			return inputErrorf("user %d is not an owner", userID)
		}
		if len(c.OwnerMembers) == 1 {
			return inputErrorf("user %d is the only owner", userID)
		}
		c.RemoveOwner(target.ID)
		return nil
	})
}

// ownerChange runs the checks shared by AddOwner and RemoveOwner.
func (s *Service) ownerChange(t *tx, token string, channelID, userID int) (*data.Channel, *data.User, error) {
	u, err := s.authenticate(t, token)
	if err != nil {
		return nil, nil, err
	}
	c, err := t.channel(channelID)
	if err != nil {
		return nil, nil, err
	}
	if !c.OwnerCapable(u) {
		return nil, nil, accessErrorf("no owner permissions in channel %d", channelID)
	}
	target, ok := t.ActiveUser(userID)
	if !ok {
		return nil, nil, inputErrorf("invalid u_id %d", userID)
	}
	if !c.HasMember(target.ID) {
		return nil, nil, inputErrorf("user %d is not a member of channel %d", userID, channelID)
	}
	return c, target, nil
}

// ListChannels returns the channels the caller belongs to.
func (s *Service) ListChannels(token string) ([]data.ChannelSummary, error) {
	return s.listChannels(token, false)
}

// ListAllChannels returns every channel, private ones included.
func (s *Service) ListAllChannels(token string) ([]data.ChannelSummary, error) {
	return s.listChannels(token, true)
}

func (s *Service) listChannels(token string, all bool) ([]data.ChannelSummary, error) {
	var out []data.ChannelSummary
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		out = []data.ChannelSummary{}
		for _, id := range t.ChannelIDs() {
			c := t.Channels[id]
			if all || c.HasMember(u.ID) {
				out = append(out, data.ChannelSummary{ChannelID: c.ID, Name: c.Name})
			}
		}
		return nil
	})
	return out, err
}

// ChannelDetails describes a channel the caller belongs to.
func (s *Service) ChannelDetails(token string, channelID int) (*ChannelDetails, error) {
	var out *ChannelDetails
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.channel(channelID)
		if err != nil {
			return err
		}
		if !c.HasMember(u.ID) {
			return accessErrorf("not a member of channel %d", channelID)
		}
		out = &ChannelDetails{
			Name:         c.Name,
			IsPublic:     c.IsPublic,
			OwnerMembers: t.profiles(c.OwnerMembers),
			AllMembers:   t.profiles(c.AllMembers),
		}
		return nil
	})
	return out, err
}

func (t *tx) profiles(ids []int) []data.Profile {
	out := make([]data.Profile, 0, len(ids))
	for _, id := range ids {
		if u, ok := t.Users[id]; ok {
			out = append(out, u.Profile())
		}
	}
	return out
}
