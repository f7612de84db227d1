package streams

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PaulBabatuyi/streams/internal/data"
)

const (
	maxMessage = 1000
	pageSize   = 50
)

var deferredCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streams",
	Subsystem: "deferred",
	Name:      "tasks_total",
	Help:      "Deferred work that fired, by kind and outcome",
}, []string{"kind", "outcome"})

func validMessage(text string) bool {
	n := utf8.RuneCountInString(text)
	return n >= 1 && n <= maxMessage
}

// post stores a new message in c and fires its tag notifications and
// stats. Callers validate everything first.
func (t *tx) post(author *data.User, c data.Container, id int, text string, at int64) *data.Message {
	m := &data.Message{
		ID:          id,
		Author:      author.ID,
		Text:        text,
		TimeCreated: at,
		Reacts:      []data.React{{ID: data.ReactLike, Users: []int{}}},
		Kind:        c.Kind(),
		ContainerID: c.ContainerID(),
	}
	t.Messages[id] = m
	c.AppendMessage(id)

	t.notifyTags(author, c, text)
	author.Stats.MessagesSent = data.Bump(author.Stats.MessagesSent, 1, t.now)
	t.Workspace.MessagesExist = data.Bump(t.Workspace.MessagesExist, 1, t.now)
	return m
}

// purge deletes a message and its entry in the container.
func (t *tx) purge(m *data.Message, c data.Container) {
	c.RemoveMessage(m.ID)
	delete(t.Messages, m.ID)
	t.Workspace.MessagesExist = data.Bump(t.Workspace.MessagesExist, -1, t.now)
}

// SendMessage posts text to a channel and returns the new message id.
func (s *Service) SendMessage(ctx context.Context, token string, channelID int, text string) (int, error) {
	return s.send(ctx, token, data.KindChannel, channelID, text)
}

// SendDM posts text to a dm and returns the new message id.
func (s *Service) SendDM(ctx context.Context, token string, dmID int, text string) (int, error) {
	return s.send(ctx, token, data.KindDM, dmID, text)
}

func (s *Service) send(ctx context.Context, token string, kind data.ContainerKind, id int, text string) (int, error) {
	var messageID int
	err := s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.memberContainer(u, kind, id)
		if err != nil {
			return err
		}
		if !validMessage(text) {
			return inputErrorf("message must be 1 to %d characters", maxMessage)
		}

		messageID = t.ReserveMessageID()
		t.post(u, c, messageID, text, t.now)
		return nil
	})
	return messageID, err
}

// SendLater schedules text for a channel at timeSent (unix seconds). The id
// is reserved now; the message becomes visible when it is delivered.
func (s *Service) SendLater(ctx context.Context, token string, channelID int, text string, timeSent int64) (int, error) {
	return s.sendLater(ctx, token, data.KindChannel, channelID, text, timeSent)
}

// SendLaterDM is SendLater for a dm.
func (s *Service) SendLaterDM(ctx context.Context, token string, dmID int, text string, timeSent int64) (int, error) {
	return s.sendLater(ctx, token, data.KindDM, dmID, text, timeSent)
}

func (s *Service) sendLater(ctx context.Context, token string, kind data.ContainerKind, id int, text string, timeSent int64) (int, error) {
	var messageID int
	err := s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.memberContainer(u, kind, id)
		if err != nil {
			return err
		}
		if !validMessage(text) {
			return inputErrorf("message must be 1 to %d characters", maxMessage)
		}
		if timeSent < t.now {
			return inputErrorf("time_sent is in the past")
		}

		messageID = t.ReserveMessageID()
		t.Pending[messageID] = &data.Pending{
			MessageID:   messageID,
			Author:      u.ID,
			Text:        text,
			Kind:        c.Kind(),
			ContainerID: c.ContainerID(),
			SendAt:      timeSent,
		}

		mid := messageID
		t.afterCommit(func() {
			s.sched.Schedule(time.Unix(timeSent, 0), func() { s.deliver(mid, timeSent) })
		})
		return nil
	})
	return messageID, err
}

// deliver publishes a deferred message. It is dropped if its author has
// since left the container or the container is gone. sendAt tells a timer
// armed before a Clear apart from a newer message that reused the id.
func (s *Service) deliver(messageID int, sendAt int64) {
	var outcome string
	err := s.update(context.Background(), func(t *tx) error {
		p, ok := t.Pending[messageID]
		if !ok || p.SendAt != sendAt {
			return errNoop
		}
		delete(t.Pending, messageID)

		author, okUser := t.ActiveUser(p.Author)
		c, okContainer := t.Container(p.Kind, p.ContainerID)
		if !okUser || !okContainer || !c.HasMember(p.Author) {
			outcome = "dropped"
			s.warnThrottled(p.Kind.String()+":"+strconv.Itoa(p.ContainerID), "dropping deferred message",
				"message_id", messageID, "kind", p.Kind, "container_id", p.ContainerID)
			return nil
		}

		t.post(author, c, p.MessageID, p.Text, p.SendAt)
		outcome = "delivered"
		return nil
	})
	if err != nil {
		outcome = "failed"
		s.logger.Error("deliver deferred message", "message_id", messageID, "err", err)
	}
	if outcome != "" {
		deferredCounter.WithLabelValues("message", outcome).Inc()
	}
}

// EditMessage replaces a message's text; empty text removes it. Authors may
// edit their own messages, owner-capable members anyone's.
func (s *Service) EditMessage(ctx context.Context, token string, messageID int, text string) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		m, c, err := t.locate(u, messageID)
		if err != nil {
			return err
		}
		if utf8.RuneCountInString(text) > maxMessage {
			return inputErrorf("message must be at most %d characters", maxMessage)
		}
		if m.Author != u.ID && !c.OwnerCapable(u) {
			return accessErrorf("not allowed to edit message %d", messageID)
		}

		if text == "" {
			t.purge(m, c)
			return nil
		}
		m.Text = text
		t.notifyTags(u, c, text)
		return nil
	})
}

// RemoveMessage deletes a message. It is EditMessage with empty text.
func (s *Service) RemoveMessage(ctx context.Context, token string, messageID int) error {
	return s.EditMessage(ctx, token, messageID, "")
}

// PinMessage marks a message as pinned.
func (s *Service) PinMessage(ctx context.Context, token string, messageID int) error {
	return s.setPinned(ctx, token, messageID, true)
}

// UnpinMessage clears the pinned mark.
func (s *Service) UnpinMessage(ctx context.Context, token string, messageID int) error {
	return s.setPinned(ctx, token, messageID, false)
}

// setPinned needs owner capability; authoring the message is not enough.
func (s *Service) setPinned(ctx context.Context, token string, messageID int, pinned bool) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		m, c, err := t.locate(u, messageID)
		if err != nil {
			return err
		}
		if m.IsPinned == pinned {
			if pinned {
				return inputErrorf("message %d is already pinned", messageID)
			}
			return inputErrorf("message %d is not pinned", messageID)
		}
		if !c.OwnerCapable(u) {
			return accessErrorf("not allowed to pin in this %s", c.Kind())
		}
		m.IsPinned = pinned
		return nil
	})
}

// React adds the caller's reaction. Membership is not checked: any user may
// react to any existing message.
func (s *Service) React(ctx context.Context, token string, messageID, reactID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		m, r, err := t.reaction(messageID, reactID)
		if err != nil {
			return err
		}
		if r != nil && slices.Contains(r.Users, u.ID) {
			return inputErrorf("already reacted to message %d", messageID)
		}
		if r == nil {
			m.Reacts = append(m.Reacts, data.React{ID: reactID, Users: []int{}})
			r = &m.Reacts[len(m.Reacts)-1]
		}
		r.Users = append(r.Users, u.ID)

		// the author only hears about it while they can still see the message
		if author, ok := t.ActiveUser(m.Author); ok {
			if c, ok := t.Container(m.Kind, m.ContainerID); ok && c.HasMember(author.ID) {
				t.notifyReacted(u, author, c)
			}
		}
		return nil
	})
}

// Unreact removes the caller's reaction.
func (s *Service) Unreact(ctx context.Context, token string, messageID, reactID int) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		_, r, err := t.reaction(messageID, reactID)
		if err != nil {
			return err
		}
		if r == nil || !slices.Contains(r.Users, u.ID) {
			return inputErrorf("no reaction on message %d to remove", messageID)
		}
		r.Users = slices.DeleteFunc(r.Users, func(id int) bool { return id == u.ID })
		return nil
	})
}

// reaction finds the message and its reaction entry. The entry is nil on
// messages stored without one.
func (t *tx) reaction(messageID, reactID int) (*data.Message, *data.React, error) {
	m, ok := t.Messages[messageID]
	if !ok {
		return nil, nil, inputErrorf("message %d not found", messageID)
	}
	if reactID != data.ReactLike {
		return nil, nil, inputErrorf("invalid react_id %d", reactID)
	}
	return m, m.React(reactID), nil
}

// Search returns the caller's visible messages containing query, channel by
// channel and then dm by dm, oldest first within each.
func (s *Service) Search(token, query string) ([]data.MessageView, error) {
	var out []data.MessageView
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !validMessage(query) {
			return inputErrorf("query must be 1 to %d characters", maxMessage)
		}

		out = []data.MessageView{}
		scan := func(c data.Container) {
			if !c.HasMember(u.ID) {
				return
			}
			for _, id := range c.MessageIDs() {
				if m, ok := t.Messages[id]; ok && strings.Contains(m.Text, query) {
					out = append(out, m.View(u.ID))
				}
			}
		}
		for _, id := range t.ChannelIDs() {
			scan(t.Channels[id])
		}
		for _, id := range t.DMIDs() {
			scan(t.DMs[id])
		}
		return nil
	})
	return out, err
}

// Share reposts a visible message, followed by extra text, to exactly one of
// a channel or a dm; the other id must be -1.
func (s *Service) Share(ctx context.Context, token string, ogMessageID int, extra string, channelID, dmID int) (int, error) {
	var messageID int
	err := s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if (channelID == data.NoContainer) == (dmID == data.NoContainer) {
			return inputErrorf("exactly one of channel_id and dm_id must be -1")
		}

		kind, id := data.KindChannel, channelID
		if channelID == data.NoContainer {
			kind, id = data.KindDM, dmID
		}
		target, err := t.memberContainer(u, kind, id)
		if err != nil {
			return err
		}

		og, _, err := t.locate(u, ogMessageID)
		if err != nil {
			return err
		}
		text := og.Text + " " + extra
		if utf8.RuneCountInString(text) > maxMessage {
			return inputErrorf("shared message must be at most %d characters", maxMessage)
		}

		messageID = t.ReserveMessageID()
		t.post(u, target, messageID, text, t.now)
		return nil
	})
	return messageID, err
}

// Page is one page of a container's messages, newest first. End is -1 when
// there are no older messages.
type Page struct {
	Messages []data.MessageView `json:"messages"`
	Start    int                `json:"start"`
	End      int                `json:"end"`
}

// ChannelMessages returns up to 50 messages of a channel starting at start,
// counted from the newest.
func (s *Service) ChannelMessages(token string, channelID, start int) (*Page, error) {
	return s.messages(token, data.KindChannel, channelID, start)
}

// DMMessages is ChannelMessages for a dm.
func (s *Service) DMMessages(token string, dmID, start int) (*Page, error) {
	return s.messages(token, data.KindDM, dmID, start)
}

func (s *Service) messages(token string, kind data.ContainerKind, id, start int) (*Page, error) {
	var page *Page
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		c, err := t.memberContainer(u, kind, id)
		if err != nil {
			return err
		}
		ids := c.MessageIDs()
		if start < 0 || start > len(ids) {
			return inputErrorf("start %d is beyond the %d messages", start, len(ids))
		}

		end := start + pageSize
		if end >= len(ids) {
			end = -1
		}
		page = &Page{Messages: []data.MessageView{}, Start: start, End: end}
		for i := len(ids) - 1 - start; i >= 0 && len(page.Messages) < pageSize; i-- {
			if m, ok := t.Messages[ids[i]]; ok {
				page.Messages = append(page.Messages, m.View(u.ID))
			}
		}
		return nil
	})
	return page, err
}
