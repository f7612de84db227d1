package streams

import (
	"context"
	"strings"
	"time"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// StandupStatus answers standup/active. TimeFinish is nil while inactive.
type StandupStatus struct {
	IsActive   bool   `json:"is_active"`
	TimeFinish *int64 `json:"time_finish"`
}

// StartStandup opens a standup window of length seconds in a channel and
// returns when it finishes.
func (s *Service) StartStandup(ctx context.Context, token string, channelID int, length int64) (int64, error) {
	var finish int64
	err := s.update(ctx, func(t *tx) error {
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
		if length < 0 {
			return inputErrorf("length must not be negative")
		}
		if c.Standup.IsActive {
			return inputErrorf("a standup is already running in channel %d", channelID)
		}

		finish = t.now + length
		c.Standup = data.Standup{IsActive: true, TimeFinish: finish, StartedBy: u.ID, Buffer: []string{}}

		end := s.standupEnder(channelID, finish)
		t.afterCommit(func() { s.sched.Schedule(time.Unix(finish, 0), end) })
		return nil
	})
	return finish, err
}

// StandupActive reports whether a standup is running in a channel.
func (s *Service) StandupActive(token string, channelID int) (*StandupStatus, error) {
	var out *StandupStatus
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
		out = &StandupStatus{IsActive: c.Standup.IsActive}
		if c.Standup.IsActive {
			finish := c.Standup.TimeFinish
			out.TimeFinish = &finish
		}
		return nil
	})
	return out, err
}

// SendStandup buffers a line for the running standup.
func (s *Service) SendStandup(ctx context.Context, token string, channelID int, line string) error {
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
		if !validMessage(line) {
			return inputErrorf("message must be 1 to %d characters", maxMessage)
		}
		if !c.Standup.IsActive {
			return inputErrorf("no standup is running in channel %d", channelID)
		}
		c.Standup.Buffer = append(c.Standup.Buffer, u.Handle+": "+line)
		return nil
	})
}

// standupEnder returns the timer callback closing the standup that finishes
// at finish. It does nothing if that standup is no longer the running one.
func (s *Service) standupEnder(channelID int, finish int64) func() {
	return func() {
		outcome := "empty"
		err := s.update(context.Background(), func(t *tx) error {
			c, ok := t.Channels[channelID]
			if !ok || !c.Standup.IsActive || c.Standup.TimeFinish != finish {
				outcome = ""
				return errNoop
			}

			st := c.Standup
			c.Standup = data.Standup{Buffer: []string{}}
			if len(st.Buffer) == 0 {
				return nil
			}

			// the summary goes out as the starter even if they left; it may
			// exceed the length limit of a normal message
			starter, ok := t.ActiveUser(st.StartedBy)
			if !ok {
				outcome = "dropped"
				s.warnThrottled("standup:"+c.Name, "dropping standup summary of removed user",
					"channel_id", channelID, "lines", len(st.Buffer))
				return nil
			}
			t.post(starter, c, t.ReserveMessageID(), strings.Join(st.Buffer, "\n"), t.now)
			outcome = "delivered"
			return nil
		})
		if err != nil {
			outcome = "failed"
			s.logger.Error("end standup", "channel_id", channelID, "err", err)
		}
		if outcome != "" {
			deferredCounter.WithLabelValues("standup", outcome).Inc()
		}
	}
}
