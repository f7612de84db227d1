package data

import "slices"

const (
	// ReactLike is the only reaction kind the workspace supports.
	ReactLike = 1

	// NoOwner marks a DM whose creator has been removed from the workspace.
	NoOwner = -1

	// NoContainer fills the channel/dm slot of a notification that refers to
	// the other kind of container.
	NoContainer = -1

	// RemovedText replaces the text of every message authored by a removed user.
	RemovedText = "Removed user"
)

// ContainerKind tells channels and DMs apart.
type ContainerKind int

const (
	KindChannel ContainerKind = iota + 1
	KindDM
)

func (k ContainerKind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindDM:
		return "dm"
	default:
		return "unknown"
	}
}

// User is a registered account (id, credentials, sessions, notifications, stats)
type User struct {
	ID            int            `bson:"u_id"`
	Email         string         `bson:"email"`
	NameFirst     string         `bson:"name_first"`
	NameLast      string         `bson:"name_last"`
	Handle        string         `bson:"handle_str"`
	Password      string         `bson:"password"`
	IsGlobalOwner bool           `bson:"is_global_owner"`
	Removed       bool           `bson:"removed"`
	Sessions      []int          `bson:"sessions"`
	Notifications []Notification `bson:"notifications"`
	Stats         UserStats      `bson:"user_stats"`
}

// HasSession reports whether sessionID is one of the user's live sessions.
func (u *User) HasSession(sessionID int) bool {
	return slices.Contains(u.Sessions, sessionID)
}

// Notification is a single entry in a user's notification feed.
type Notification struct {
	ChannelID int    `bson:"channel_id" json:"channel_id"`
	DMID      int    `bson:"dm_id" json:"dm_id"`
	Message   string `bson:"notification_message" json:"notification_message"`
}

// Sample is one point of a stats time series.
type Sample struct {
	Count     int   `bson:"count"`
	TimeStamp int64 `bson:"time_stamp"`
}

// UserStats holds the per-user usage series.
type UserStats struct {
	ChannelsJoined []Sample `bson:"channels_joined"`
	DMsJoined      []Sample `bson:"dms_joined"`
	MessagesSent   []Sample `bson:"messages_sent"`
}

// WorkspaceStats holds the workspace-wide usage series.
type WorkspaceStats struct {
	ChannelsExist []Sample `bson:"channels_exist"`
	DMsExist      []Sample `bson:"dms_exist"`
	MessagesExist []Sample `bson:"messages_exist"`
}

// Latest returns the most recent count of a series, zero when empty.
func Latest(series []Sample) int {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].Count
}

// Bump appends a new sample derived from the latest count.
func Bump(series []Sample, delta int, at int64) []Sample {
	return append(series, Sample{Count: Latest(series) + delta, TimeStamp: at})
}

// Standup is the buffering state embedded in every channel.
type Standup struct {
	IsActive   bool     `bson:"is_active"`
	TimeFinish int64    `bson:"time_finish"`
	StartedBy  int      `bson:"started_by"`
	Buffer     []string `bson:"buffer"`
}

// Channel maps to a workspace channel
type Channel struct {
	ID           int     `bson:"channel_id"`
	Name         string  `bson:"name"`
	IsPublic     bool    `bson:"is_public"`
	AllMembers   []int   `bson:"all_members"`
	OwnerMembers []int   `bson:"owner_members"`
	MessageList  []int   `bson:"messages"`
	Standup      Standup `bson:"standup"`
}

// DM maps to a direct-message group
type DM struct {
	ID          int    `bson:"dm_id"`
	Name        string `bson:"name"`
	Owner       int    `bson:"owner"`
	MemberList  []int  `bson:"members"`
	MessageList []int  `bson:"messages"`
}

// React is the set of users who reacted with one reaction kind.
type React struct {
	ID    int   `bson:"react_id"`
	Users []int `bson:"u_ids"`
}

// Message is a single channel or DM message. It belongs to exactly one
// container for its whole life.
type Message struct {
	ID          int           `bson:"message_id"`
	Author      int           `bson:"u_id"`
	Text        string        `bson:"message"`
	TimeCreated int64         `bson:"time_created"`
	IsPinned    bool          `bson:"is_pinned"`
	Reacts      []React       `bson:"reacts"`
	Kind        ContainerKind `bson:"kind"`
	ContainerID int           `bson:"container_id"`
}

// React returns the reaction entry for reactID, or nil.
func (m *Message) React(reactID int) *React {
	for i := range m.Reacts {
		if m.Reacts[i].ID == reactID {
			return &m.Reacts[i]
		}
	}
	return nil
}

// Pending is a deferred message whose id is already reserved but which only
// becomes visible at SendAt.
type Pending struct {
	MessageID   int           `bson:"message_id"`
	Author      int           `bson:"u_id"`
	Text        string        `bson:"message"`
	Kind        ContainerKind `bson:"kind"`
	ContainerID int           `bson:"container_id"`
	SendAt      int64         `bson:"send_at"`
}
