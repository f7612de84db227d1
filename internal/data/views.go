package data

import "slices"

// Profile is the public projection of a User: no password, sessions,
// notifications, stats, or permission flag.
type Profile struct {
	UserID    int    `json:"u_id"`
	Email     string `json:"email"`
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
	Handle    string `json:"handle_str"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		UserID:    u.ID,
		Email:     u.Email,
		NameFirst: u.NameFirst,
		NameLast:  u.NameLast,
		Handle:    u.Handle,
	}
}

// ReactView is one reaction kind as seen by a particular viewer.
type ReactView struct {
	ReactID           int   `json:"react_id"`
	UserIDs           []int `json:"u_ids"`
	IsThisUserReacted bool  `json:"is_this_user_reacted"`
}

// MessageView is the public projection of a Message for a viewer.
type MessageView struct {
	MessageID   int         `json:"message_id"`
	UserID      int         `json:"u_id"`
	Message     string      `json:"message"`
	TimeCreated int64       `json:"time_created"`
	Reacts      []ReactView `json:"reacts"`
	IsPinned    bool        `json:"is_pinned"`
}

// View projects m for viewerID.
func (m *Message) View(viewerID int) MessageView {
	reacts := make([]ReactView, 0, len(m.Reacts))
	for _, r := range m.Reacts {
		reacts = append(reacts, ReactView{
			ReactID:           r.ID,
			UserIDs:           append([]int{}, r.Users...),
			IsThisUserReacted: slices.Contains(r.Users, viewerID),
		})
	}
	return MessageView{
		MessageID:   m.ID,
		UserID:      m.Author,
		Message:     m.Text,
		TimeCreated: m.TimeCreated,
		Reacts:      reacts,
		IsPinned:    m.IsPinned,
	}
}

// ChannelSummary is the {channel_id, name} pair used by channel listings.
type ChannelSummary struct {
	ChannelID int    `json:"channel_id"`
	Name      string `json:"name"`
}

// DMSummary is the {dm_id, name} pair used by dm listings.
type DMSummary struct {
	DMID int    `json:"dm_id"`
	Name string `json:"name"`
}
