// Package streams implements the workspace operations: messages, channels,
// DMs, standups, notifications, stats, accounts and administration.
//
// Every exported operation is one transaction. It authenticates the token,
// validates every input in a fixed order and only then mutates the store;
// the first failed check returns without touching state. Work that must
// happen after a commit (pushing notifications, arming timers) is queued on
// the transaction and run once the store has persisted.
package streams

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/PaulBabatuyi/streams/internal/auth"
	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/scheduler"
)

// Notifier is told about every notification once it has been committed.
type Notifier interface {
	Notify(userID int, n data.Notification)
}

// SessionRevoker is an optional interface of a Notifier. It is told about
// sessions that ended so that streams opened under them can be closed.
type SessionRevoker interface {
	RevokeSessions(userID int, sessionIDs ...int)
}

// Throttle decides whether a repeated event under key is worth logging.
type Throttle interface {
	Allow(key string) bool
}

// Service is the workspace API.
type Service struct {
	store    *data.Store
	tokens   *auth.JWTManager
	sched    scheduler.Scheduler
	now      func() time.Time
	logger   *log.Logger
	notifier Notifier
	throttle Throttle
}

// Option configures a Service.
type Option func(*Service)

// WithScheduler sets the scheduler used for deferred sends and standups.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(svc *Service) { svc.sched = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// WithNotifier registers the sink for committed notifications.
func WithNotifier(n Notifier) Option {
	return func(svc *Service) { svc.notifier = n }
}

// WithThrottle limits how often dropped deferred work is logged.
func WithThrottle(t Throttle) Option {
	return func(svc *Service) { svc.throttle = t }
}

// New returns a Service over store. Tokens are issued and checked by tokens.
func New(store *data.Store, tokens *auth.JWTManager, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithPrefix("streams")
	if s.sched == nil {
		s.sched = scheduler.NewTimer(s.logger)
	}
	return s
}

// errNoop aborts an update without persisting and without reporting an error.
var errNoop = errors.New("noop")

// tx is the view of the state given to one operation.
type tx struct {
	*data.State

	// now is the operation's wall clock in unix seconds
	now int64

	after   []func()
	pushed  []push
	revoked []revocation
}

type revocation struct {
	userID   int
	sessions []int
}

// revoke records that sessions of userID ended in this transaction.
func (t *tx) revoke(userID int, sessions ...int) {
	if len(sessions) == 0 {
		return
	}
	t.revoked = append(t.revoked, revocation{userID: userID, sessions: slices.Clone(sessions)})
}

type push struct {
	userID int
	n      data.Notification
}

// afterCommit queues fn to run once the transaction has been persisted.
func (t *tx) afterCommit(fn func()) { t.after = append(t.after, fn) }

func (s *Service) update(ctx context.Context, fn func(*tx) error) error {
	var committed *tx
	err := s.store.Update(ctx, func(st *data.State) error {
		t := &tx{State: st, now: s.now().Unix()}
		if err := fn(t); err != nil {
			return err
		}
		committed = t
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.notifier != nil {
		for _, p := range committed.pushed {
			s.notifier.Notify(p.userID, p.n)
		}
		if r, ok := s.notifier.(SessionRevoker); ok {
			for _, rv := range committed.revoked {
				r.RevokeSessions(rv.userID, rv.sessions...)
			}
		}
	}
	for _, f := range committed.after {
		f()
	}
	return nil
}

func (s *Service) view(fn func(*tx) error) error {
	return s.store.View(func(st *data.State) error {
		return fn(&tx{State: st, now: s.now().Unix()})
	})
}

// authenticate resolves a token to an active user with a live session.
func (s *Service) authenticate(t *tx, token string) (*data.User, error) {
	if token == "" {
		return nil, accessErrorf("missing token")
	}
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil, &AccessError{Msg: "invalid token", Err: err}
	}
	u, ok := t.ActiveUser(claims.UserID)
	if !ok || !u.HasSession(claims.SessionID) {
		return nil, accessErrorf("invalid token")
	}
	return u, nil
}

// Resume arms timers for work persisted by a previous process: deferred
// messages and active standups. Anything already overdue fires at once.
func (s *Service) Resume() error {
	type armed struct {
		at time.Time
		fn func()
	}
	var tasks []armed

	err := s.view(func(t *tx) error {
		for _, id := range t.PendingIDs() {
			p := t.Pending[id]
			tasks = append(tasks, armed{time.Unix(p.SendAt, 0), func() { s.deliver(p.MessageID, p.SendAt) }})
		}
		for _, id := range t.ChannelIDs() {
			st := t.Channels[id].Standup
			if st.IsActive {
				tasks = append(tasks, armed{time.Unix(st.TimeFinish, 0), s.standupEnder(id, st.TimeFinish)})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, a := range tasks {
		s.sched.Schedule(a.at, a.fn)
	}
	if len(tasks) > 0 {
		s.logger.Info("resumed deferred work", "tasks", len(tasks))
	}
	return nil
}

// Clear resets the workspace. Timers already armed find nothing to do when
// they fire.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("workspace cleared")
	return nil
}

// warnThrottled logs msg unless the throttle says key was logged recently.
func (s *Service) warnThrottled(key, msg string, keyvals ...any) {
	if s.throttle != nil && !s.throttle.Allow(key) {
		return
	}
	s.logger.Warn(msg, keyvals...)
}
