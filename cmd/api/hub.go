package main

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/streams"
)

// StreamSender defines the minimal interface the hub needs from a
// connection: the ability to push one notification to the client.
type StreamSender interface {
	Send(data.Notification) error
}

// ConnectionHub tracks the notification streams of connected users.
// It maps user ids to one or more active connections so every committed
// notification reaches all endpoints a user currently has open.
type ConnectionHub struct {
	mu      sync.RWMutex
	streams map[int]map[int64]*stream
	nextID  int64
	logger  *log.Logger
}

// stream is one open connection and the session it was opened under.
type stream struct {
	session int
	sender  StreamSender
}

var (
	_ streams.Notifier       = (*ConnectionHub)(nil)
	_ streams.SessionRevoker = (*ConnectionHub)(nil)
)

// NewConnectionHub creates a new hub instance.
func NewConnectionHub(logger *log.Logger) *ConnectionHub {
	if logger == nil {
		logger = log.Default()
	}
	return &ConnectionHub{
		streams: make(map[int]map[int64]*stream),
		logger:  logger.WithPrefix("hub"),
	}
}

// Register registers a stream userID opened under session and returns a
// connection id to unregister it with once the stream closes.
func (h *ConnectionHub) Register(userID, session int, s StreamSender) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.streams[userID]; !ok {
		h.streams[userID] = make(map[int64]*stream)
	}

	h.nextID++
	id := h.nextID
	h.streams[userID][id] = &stream{session: session, sender: s}
	return id
}

// Unregister removes a previously registered stream.
func (h *ConnectionHub) Unregister(userID int, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.streams[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.streams, userID)
		}
	}
}

// SendToUser sends n to every stream userID has open and returns the first
// error seen. Streams that fail are unregistered. A user with no streams
// is an error.
func (h *ConnectionHub) SendToUser(userID int, n data.Notification) error {
	h.mu.RLock()
	conns, ok := h.streams[userID]
	targets := make(map[int64]StreamSender, len(conns))
	for id, s := range conns {
		targets[id] = s.sender
	}
	h.mu.RUnlock()

	if !ok || len(targets) == 0 {
		return fmt.Errorf("user %d not connected", userID)
	}

	var firstErr error
	var failedIDs []int64
	for id, st := range targets {
		if err := st.Send(n); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failedIDs = append(failedIDs, id)
		}
	}

	for _, id := range failedIDs {
		h.Unregister(userID, id)
	}
	return firstErr
}

// Notify implements streams.Notifier. Delivery is best effort: users
// without an open stream read the notification from their feed later.
func (h *ConnectionHub) Notify(userID int, n data.Notification) {
	if !h.Connected(userID) {
		return
	}
	if err := h.SendToUser(userID, n); err != nil {
		h.logger.Debug("push failed", "user", userID, "err", err)
	}
}

// RevokeSessions implements streams.SessionRevoker: streams opened under
// the given sessions of userID are closed and forgotten.
func (h *ConnectionHub) RevokeSessions(userID int, sessionIDs ...int) {
	h.mu.Lock()
	var closing []StreamSender
	for id, s := range h.streams[userID] {
		if slices.Contains(sessionIDs, s.session) {
			closing = append(closing, s.sender)
			delete(h.streams[userID], id)
		}
	}
	if len(h.streams[userID]) == 0 {
		delete(h.streams, userID)
	}
	h.mu.Unlock()

	for _, s := range closing {
		closeSender(s)
	}
	if len(closing) > 0 {
		h.logger.Debug("closed revoked streams", "user", userID, "streams", len(closing))
	}
}

// Connected reports whether userID has at least one open stream.
func (h *ConnectionHub) Connected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID]) > 0
}

// Len returns the number of open streams.
func (h *ConnectionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.streams {
		n += len(conns)
	}
	return n
}

// Close closes and forgets every stream.
func (h *ConnectionHub) Close() error {
	h.mu.Lock()
	all := h.streams
	h.streams = make(map[int]map[int64]*stream)
	h.mu.Unlock()

	for _, conns := range all {
		for _, s := range conns {
			closeSender(s.sender)
		}
	}
	return nil
}

func closeSender(s StreamSender) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}
