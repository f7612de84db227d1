package streams

import (
	"context"
	"slices"
	"unicode/utf8"

	"github.com/PaulBabatuyi/streams/internal/auth"
	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/normalize"
)

const (
	minPassword = 6
	maxName     = 50
)

// Session is what register and login hand back.
type Session struct {
	Token      string `json:"token"`
	AuthUserID int    `json:"auth_user_id"`
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 1 && n <= maxName
}

// emailTaken reports whether an active user other than except uses email.
func (t *tx) emailTaken(email string, except int) bool {
	for _, u := range t.Users {
		if !u.Removed && u.ID != except && u.Email == email {
			return true
		}
	}
	return false
}

// handleTaken reports whether an active user other than except uses handle.
func (t *tx) handleTaken(handle string, except int) bool {
	for _, u := range t.Users {
		if !u.Removed && u.ID != except && u.Handle == handle {
			return true
		}
	}
	return false
}

// startSession adds a session to u and signs a token for it.
func (s *Service) startSession(t *tx, u *data.User) (*Session, error) {
	sid := t.ReserveSessionID()
	token, err := s.tokens.GenerateToken(u.ID, sid)
	if err != nil {
		return nil, err
	}
	u.Sessions = append(u.Sessions, sid)
	return &Session{Token: token, AuthUserID: u.ID}, nil
}

// Register creates an account and logs it in. The first account becomes a
// global owner.
func (s *Service) Register(ctx context.Context, email, password, nameFirst, nameLast string) (*Session, error) {
	email = normalize.Email(email)
	if !normalize.ValidEmail(email) {
		return nil, inputErrorf("invalid email")
	}
	if len(password) < minPassword {
		return nil, inputErrorf("password must be at least %d characters", minPassword)
	}
	if !validName(nameFirst) || !validName(nameLast) {
		return nil, inputErrorf("names must be 1 to %d characters", maxName)
	}

	// bcrypt is slow; keep it outside the store lock
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var sess *Session
	err = s.update(ctx, func(t *tx) error {
		if t.emailTaken(email, -1) {
			return inputErrorf("email already in use")
		}

		id := t.NextUserID
		handle := normalize.Handle(nameFirst, nameLast, func(h string) bool { return t.handleTaken(h, id) })
		zero := []data.Sample{{Count: 0, TimeStamp: t.now}}
		u := &data.User{
			ID:            id,
			Email:         email,
			NameFirst:     nameFirst,
			NameLast:      nameLast,
			Handle:        handle,
			Password:      hash,
			IsGlobalOwner: len(t.Users) == 0,
			Sessions:      []int{},
			Notifications: []data.Notification{},
			Stats: data.UserStats{
				ChannelsJoined: append([]data.Sample{}, zero...),
				DMsJoined:      append([]data.Sample{}, zero...),
				MessagesSent:   append([]data.Sample{}, zero...),
			},
		}
		if len(t.Users) == 0 {
			t.Workspace = data.WorkspaceStats{
				ChannelsExist: append([]data.Sample{}, zero...),
				DMsExist:      append([]data.Sample{}, zero...),
				MessagesExist: append([]data.Sample{}, zero...),
			}
		}

		sess, err = s.startSession(t, u)
		if err != nil {
			return err
		}
		t.Users[id] = u
		t.NextUserID++
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "u_id", sess.AuthUserID)
	return sess, nil
}

// Login starts a new session for an existing account.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalize.Email(email)

	// look up the hash under the read lock, compare outside any lock
	var userID = -1
	var hash string
	_ = s.view(func(t *tx) error {
		for _, u := range t.Users {
			if !u.Removed && u.Email == email {
				userID, hash = u.ID, u.Password
			}
		}
		return nil
	})
	if userID < 0 {
		return nil, inputErrorf("email not registered")
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, inputErrorf("incorrect password")
	}

	var sess *Session
	err := s.update(ctx, func(t *tx) error {
		u, ok := t.ActiveUser(userID)
		if !ok {
			return inputErrorf("email not registered")
		}
		var err error
		sess, err = s.startSession(t, u)
		return err
	})
	return sess, err
}

// Logout ends the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		claims, _ := s.tokens.VerifyToken(token)
		u.Sessions = slices.DeleteFunc(u.Sessions, func(id int) bool { return id == claims.SessionID })
		t.revoke(u.ID, claims.SessionID)
		return nil
	})
}

// AllUsers lists every active user.
func (s *Service) AllUsers(token string) ([]data.Profile, error) {
	var out []data.Profile
	err := s.view(func(t *tx) error {
		if _, err := s.authenticate(t, token); err != nil {
			return err
		}
		out = []data.Profile{}
		for _, id := range t.UserIDs() {
			if u := t.Users[id]; !u.Removed {
				out = append(out, u.Profile())
			}
		}
		return nil
	})
	return out, err
}

// UserProfile returns any user's profile, removed users included.
func (s *Service) UserProfile(token string, userID int) (*data.Profile, error) {
	var out *data.Profile
	err := s.view(func(t *tx) error {
		if _, err := s.authenticate(t, token); err != nil {
			return err
		}
		u, ok := t.Users[userID]
		if !ok {
			return inputErrorf("invalid u_id %d", userID)
		}
		p := u.Profile()
		out = &p
		return nil
	})
	return out, err
}

// SetName changes the caller's display name.
func (s *Service) SetName(ctx context.Context, token, nameFirst, nameLast string) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !validName(nameFirst) || !validName(nameLast) {
			return inputErrorf("names must be 1 to %d characters", maxName)
		}
		u.NameFirst, u.NameLast = nameFirst, nameLast
		return nil
	})
}

// SetEmail changes the caller's email.
func (s *Service) SetEmail(ctx context.Context, token, email string) error {
	email = normalize.Email(email)
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !normalize.ValidEmail(email) {
			return inputErrorf("invalid email")
		}
		if t.emailTaken(email, u.ID) {
			return inputErrorf("email already in use")
		}
		u.Email = email
		return nil
	})
}

// SetHandle changes the caller's handle. Existing dm names keep the old one.
func (s *Service) SetHandle(ctx context.Context, token, handle string) error {
	return s.update(ctx, func(t *tx) error {
		u, err := s.authenticate(t, token)
		if err != nil {
			return err
		}
		if !normalize.ValidHandle(handle) {
			return inputErrorf("handle must be 3 to %d alphanumeric characters", normalize.MaxHandle)
		}
		if t.handleTaken(handle, u.ID) {
			return inputErrorf("handle already in use")
		}
		u.Handle = handle
		return nil
	})
}
