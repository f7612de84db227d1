package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/PaulBabatuyi/streams/internal/data"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize bounds what the peer may send. Clients only send
	// control frames on this stream.
	maxMessageSize = 512
	// sendBuffer is how many notifications may queue for a slow client.
	sendBuffer = 32
)

var (
	errClientClosed = errors.New("stream closed")
	errClientSlow   = errors.New("stream buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsClient is one websocket notification stream. Send never blocks: a
// client that falls sendBuffer notifications behind is dropped by the hub.
type wsClient struct {
	conn   *websocket.Conn
	send   chan data.Notification
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

var _ StreamSender = (*wsClient)(nil)

func newWSClient(conn *websocket.Conn, logger *log.Logger) *wsClient {
	return &wsClient{
		conn:   conn,
		send:   make(chan data.Notification, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send implements StreamSender.
func (c *wsClient) Send(n data.Notification) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- n:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.Close() //nolint:errcheck
		return errClientSlow
	}
}

// Close stops the write pump, which closes the connection.
func (c *wsClient) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// readPump drains the connection so control frames are processed. It
// returns when the peer goes away.
func (c *wsClient) readPump() {
	defer c.Close() //nolint:errcheck

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("stream read error", "err", err)
			}
			return
		}
	}
}

// writePump writes queued notifications and pings. It is the only writer
// on the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case n := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(n); err != nil {
				c.logger.Debug("stream write error", "err", err)
				c.Close() //nolint:errcheck
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close() //nolint:errcheck
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleStream upgrades an authenticated request to a websocket that
// receives every notification committed for the caller from now on. The
// stream is closed when its session is revoked.
func (a *api) handleStream(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r, "")
	userID, session, err := a.svc.Authenticate(token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		a.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	c := newWSClient(conn, a.logger.With("user", userID))
	id := a.hub.Register(userID, session, c)
	a.logger.Debug("stream opened", "user", userID)

	// a logout between the check above and Register found nothing to close
	if _, _, err := a.svc.Authenticate(token); err != nil {
		c.Close() //nolint:errcheck
	}

	go c.writePump()
	c.readPump()

	a.hub.Unregister(userID, id)
	a.logger.Debug("stream closed", "user", userID)
}
