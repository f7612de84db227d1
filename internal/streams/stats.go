package streams

import "github.com/PaulBabatuyi/streams/internal/data"

// ChannelsJoinedSample etc. carry the per-series field names of the stats
// responses.
type (
	ChannelsJoinedSample struct {
		Count     int   `json:"num_channels_joined"`
		TimeStamp int64 `json:"time_stamp"`
	}
	DMsJoinedSample struct {
		Count     int   `json:"num_dms_joined"`
		TimeStamp int64 `json:"time_stamp"`
	}
	MessagesSentSample struct {
		Count     int   `json:"num_messages_sent"`
		TimeStamp int64 `json:"time_stamp"`
	}
	ChannelsExistSample struct {
		Count     int   `json:"num_channels_exist"`
		TimeStamp int64 `json:"time_stamp"`
	}
	DMsExistSample struct {
		Count     int   `json:"num_dms_exist"`
		TimeStamp int64 `json:"time_stamp"`
	}
	MessagesExistSample struct {
		Count     int   `json:"num_messages_exist"`
		TimeStamp int64 `json:"time_stamp"`
	}
)

// UserStats is a user's activity history and involvement.
type UserStats struct {
	ChannelsJoined  []ChannelsJoinedSample `json:"channels_joined"`
	DMsJoined       []DMsJoinedSample      `json:"dms_joined"`
	MessagesSent    []MessagesSentSample   `json:"messages_sent"`
	InvolvementRate float64                `json:"involvement_rate"`
}

// WorkspaceStats is the workspace's activity history and utilization.
type WorkspaceStats struct {
	ChannelsExist   []ChannelsExistSample `json:"channels_exist"`
	DMsExist        []DMsExistSample      `json:"dms_exist"`
	MessagesExist   []MessagesExistSample `json:"messages_exist"`
	UtilizationRate float64               `json:"utilization_rate"`
}

func convert[T any](series []data.Sample, mk func(data.Sample) T) []T {
	out := make([]T, 0, len(series))
	for _, s := range series {
		out = append(out, mk(s))
	}
	return out
}

// UserStats returns the caller's stats.
func (s *Service) UserStats(token string) (*UserStats, error) {
	var out *UserStats
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		st := u.Stats
		out = &UserStats{
			ChannelsJoined: convert(st.ChannelsJoined, func(v data.Sample) ChannelsJoinedSample {
				return ChannelsJoinedSample{v.Count, v.TimeStamp}
			}),
			DMsJoined: convert(st.DMsJoined, func(v data.Sample) DMsJoinedSample {
				return DMsJoinedSample{v.Count, v.TimeStamp}
			}),
			MessagesSent: convert(st.MessagesSent, func(v data.Sample) MessagesSentSample {
				return MessagesSentSample{v.Count, v.TimeStamp}
			}),
			InvolvementRate: t.involvement(u),
		}
		return nil
	})
	return out, err
}

// WorkspaceStats returns the workspace-wide stats.
func (s *Service) WorkspaceStats(token string) (*WorkspaceStats, error) {
	var out *WorkspaceStats
	err := s.view(func(t *tx) error {
		if _, err := s.authenticate(t, token); err != nil {
			return err
		}
		ws := t.Workspace
		out = &WorkspaceStats{
			ChannelsExist: convert(ws.ChannelsExist, func(v data.Sample) ChannelsExistSample {
				return ChannelsExistSample{v.Count, v.TimeStamp}
			}),
			DMsExist: convert(ws.DMsExist, func(v data.Sample) DMsExistSample {
				return DMsExistSample{v.Count, v.TimeStamp}
			}),
			MessagesExist: convert(ws.MessagesExist, func(v data.Sample) MessagesExistSample {
				return MessagesExistSample{v.Count, v.TimeStamp}
			}),
			UtilizationRate: t.utilization(),
		}
		return nil
	})
	return out, err
}

// involvement is the user's share of everything that exists, capped at 1.
func (t *tx) involvement(u *data.User) float64 {
	num := data.Latest(u.Stats.ChannelsJoined) + data.Latest(u.Stats.DMsJoined) + data.Latest(u.Stats.MessagesSent)
	den := data.Latest(t.Workspace.ChannelsExist) + data.Latest(t.Workspace.DMsExist) + data.Latest(t.Workspace.MessagesExist)
	if den <= 0 {
		return 0
	}
	return min(float64(num)/float64(den), 1)
}

// utilization is the share of active users in at least one channel or dm.
func (t *tx) utilization() float64 {
	active, joined := 0, 0
	for _, u := range t.Users {
		if u.Removed {
			continue
		}
		active++
		if t.inAnyContainer(u.ID) {
			joined++
		}
	}
	if active == 0 {
		return 0
	}
	return float64(joined) / float64(active)
}

func (t *tx) inAnyContainer(userID int) bool {
	for _, c := range t.Channels {
		if c.HasMember(userID) {
			return true
		}
	}
	for _, d := range t.DMs {
		if d.HasMember(userID) {
			return true
		}
	}
	return false
}
