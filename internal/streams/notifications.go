package streams

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/PaulBabatuyi/streams/internal/data"
)

// feedSize is how many notifications a read returns.
const feedSize = 20

// tagPreview is how much of a message a tag notification quotes.
const tagPreview = 20

var tagRE = regexp.MustCompile(`@([A-Za-z0-9]+)`)

// notify appends a notification about c to the user's feed and queues it
// for push delivery.
func (t *tx) notify(to *data.User, c data.Container, text string) {
	n := data.Notification{ChannelID: data.NoContainer, DMID: data.NoContainer, Message: text}
	switch c.Kind() {
	case data.KindChannel:
		n.ChannelID = c.ContainerID()
	case data.KindDM:
		n.DMID = c.ContainerID()
	}
	to.Notifications = append(to.Notifications, n)
	t.pushed = append(t.pushed, push{userID: to.ID, n: n})
}

func (t *tx) notifyAdded(by, to *data.User, c data.Container) {
	t.notify(to, c, fmt.Sprintf("%s added you to %s", by.Handle, c.DisplayName()))
}

func (t *tx) notifyReacted(by, author *data.User, c data.Container) {
	t.notify(author, c, fmt.Sprintf("%s reacted to your message in %s", by.Handle, c.DisplayName()))
}

// notifyTags notifies every distinct member of c tagged as @handle in text.
// Handles that match nobody in c are skipped.
func (t *tx) notifyTags(by *data.User, c data.Container, text string) {
	var seen []string
	for _, match := range tagRE.FindAllStringSubmatch(text, -1) {
		handle := match[1]
		if slices.Contains(seen, handle) {
			continue
		}
		seen = append(seen, handle)

		for _, id := range c.Members() {
			u, ok := t.ActiveUser(id)
			if ok && u.Handle == handle {
				t.notify(u, c, fmt.Sprintf("%s tagged you in %s: %s", by.Handle, c.DisplayName(), preview(text)))
				break
			}
		}
	}
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > tagPreview {
		r = r[:tagPreview]
	}
	return string(r)
}

// Notifications returns the caller's most recent notifications, newest first.
func (s *Service) Notifications(token string) ([]data.Notification, error) {
	var out []data.Notification
	err := s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		out = make([]data.Notification, 0, feedSize)
		for i := len(u.Notifications) - 1; i >= 0 && len(out) < feedSize; i-- {
			out = append(out, u.Notifications[i])
		}
		return nil
	})
	return out, err
}

// Authenticate resolves token to the caller's user and session ids. The
// notification stream uses it to authorise websocket upgrades.
func (s *Service) Authenticate(token string) (userID, sessionID int, err error) {
	err = s.view(func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		claims, err := s.tokens.VerifyToken(token)
		if err != nil {
			return &AccessError{Msg: "invalid token", Err: err}
		}
		userID, sessionID = u.ID, claims.SessionID
		return nil
	})
	return userID, sessionID, err
}
