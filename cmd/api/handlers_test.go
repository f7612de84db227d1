package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/streams/internal/config"
	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/scheduler"
	"github.com/PaulBabatuyi/streams/internal/streams"
)

type testServer struct {
	app     *app
	handler http.Handler
	sched   *scheduler.Manual
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataPath = t.TempDir()
	cfg.DB.Driver = "memory"
	cfg.Auth.Secret = "test-secret"
	cfg.GRPC.ListenAddr = ""
	cfg.Stats.ListenAddr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sched := scheduler.NewManual(time.Unix(1_700_000_000, 0))
	a, err := newApp(context.Background(), testConfig(t), log.New(io.Discard),
		streams.WithScheduler(sched),
		streams.WithClock(sched.Now),
	)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return &testServer{app: a, handler: a.http.server.Handler, sched: sched}
}

// do sends a JSON request and decodes the JSON response into out when out
// is not nil. It returns the status code.
func (s *testServer) do(t *testing.T, method, target string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s %s: content type %q", method, target, ct)
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, target, err)
		}
	}
	return rec.Code
}

type session struct {
	Token  string `json:"token"`
	UserID int    `json:"auth_user_id"`
}

func (s *testServer) register(t *testing.T, first, last string) session {
	t.Helper()
	var sess session
	code := s.do(t, http.MethodPost, "/auth/register/v2", map[string]string{
		"email":      strings.ToLower(first+"."+last) + "@example.com",
		"password":   "password123",
		"name_first": first,
		"name_last":  last,
	}, &sess)
	if code != http.StatusOK {
		t.Fatalf("register %s %s: status %d", first, last, code)
	}
	return sess
}

func (s *testServer) createChannel(t *testing.T, token, name string, public bool) int {
	t.Helper()
	var out struct {
		ChannelID int `json:"channel_id"`
	}
	code := s.do(t, http.MethodPost, "/channels/create/v2", map[string]any{
		"token": token, "name": name, "is_public": public,
	}, &out)
	if code != http.StatusOK {
		t.Fatalf("create channel: status %d", code)
	}
	return out.ChannelID
}

type page struct {
	Messages []data.MessageView `json:"messages"`
	Start    int                `json:"start"`
	End      int                `json:"end"`
}

func TestRegisterSendAndRead(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")
	if ada.UserID != 0 || ada.Token == "" {
		t.Fatalf("unexpected session %+v", ada)
	}
	cid := s.createChannel(t, ada.Token, "general", true)

	var sent struct {
		MessageID int `json:"message_id"`
	}
	code := s.do(t, http.MethodPost, "/message/send/v1", map[string]any{
		"token": ada.Token, "channel_id": cid, "message": "hello",
	}, &sent)
	if code != http.StatusOK {
		t.Fatalf("send: status %d", code)
	}

	var p page
	code = s.do(t, http.MethodGet, fmt.Sprintf("/channel/messages/v2?token=%s&channel_id=%d&start=0", ada.Token, cid), nil, &p)
	if code != http.StatusOK {
		t.Fatalf("messages: status %d", code)
	}
	if len(p.Messages) != 1 || p.Messages[0].Message != "hello" || p.Messages[0].MessageID != sent.MessageID {
		t.Fatalf("unexpected page %+v", p)
	}
	if p.End != -1 {
		t.Fatalf("end = %d, want -1", p.End)
	}
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Ada", "Lovelace")

	var sess session
	code := s.do(t, http.MethodPost, "/auth/login/v2", map[string]string{
		"email": "ada.lovelace@example.com", "password": "password123",
	}, &sess)
	if code != http.StatusOK || sess.Token == "" {
		t.Fatalf("login: status %d, session %+v", code, sess)
	}

	if code := s.do(t, http.MethodPost, "/auth/logout/v1", map[string]string{"token": sess.Token}, nil); code != http.StatusOK {
		t.Fatalf("logout: status %d", code)
	}
	if code := s.do(t, http.MethodGet, "/channels/list/v2?token="+sess.Token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("revoked token: status %d, want 403", code)
	}

	code = s.do(t, http.MethodPost, "/auth/login/v2", map[string]string{
		"email": "ada.lovelace@example.com", "password": "wrong-password",
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad password: status %d, want 400", code)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")

	cases := []struct {
		name   string
		method string
		target string
		body   any
		code   int
	}{
		{"unknown channel", http.MethodPost, "/message/send/v1", map[string]any{"token": ada.Token, "channel_id": 42, "message": "hi"}, http.StatusBadRequest},
		{"bad token", http.MethodPost, "/message/send/v1", map[string]any{"token": "nope", "channel_id": 0, "message": "hi"}, http.StatusForbidden},
		{"missing token", http.MethodGet, "/channels/listall/v2", nil, http.StatusForbidden},
		{"malformed body", http.MethodPost, "/channels/create/v2", "not an object", http.StatusBadRequest},
		{"bad query int", http.MethodGet, "/channel/details/v2?token=" + ada.Token + "&channel_id=abc", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/nope/v1", nil, http.StatusNotFound},
		{"wrong method", http.MethodGet, "/message/send/v1", nil, http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var body errorBody
			code := s.do(t, c.method, c.target, c.body, &body)
			if code != c.code {
				t.Fatalf("status %d, want %d", code, c.code)
			}
			if body.Code != c.code || body.Name != "System Error" || body.Message == "" {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")
	s.createChannel(t, ada.Token, "general", true)

	req := httptest.NewRequest(http.MethodGet, "/channels/list/v2", nil)
	req.Header.Set("Authorization", "Bearer "+ada.Token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var out struct {
		Channels []data.ChannelSummary `json:"channels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Channels) != 1 || out.Channels[0].Name != "general" {
		t.Fatalf("unexpected channels %+v", out.Channels)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "trace-me" {
		t.Fatalf("request id = %q", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/livez", "/readyz"} {
		var out map[string]string
		if code := s.do(t, http.MethodGet, path, nil, &out); code != http.StatusOK || out["status"] != "ok" {
			t.Fatalf("%s: status %d, body %v", path, code, out)
		}
	}
}

func TestClearEndpoint(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")

	if code := s.do(t, http.MethodDelete, "/clear/v1", nil, nil); code != http.StatusOK {
		t.Fatalf("clear: status %d", code)
	}
	if code := s.do(t, http.MethodGet, "/users/all/v1?token="+ada.Token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("token survived clear: status %d", code)
	}

	again := s.register(t, "Ada", "Lovelace")
	if again.UserID != 0 {
		t.Fatalf("ids not reset, got %d", again.UserID)
	}
}

func TestSendLaterOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")
	cid := s.createChannel(t, ada.Token, "general", true)

	var sent struct {
		MessageID int `json:"message_id"`
	}
	code := s.do(t, http.MethodPost, "/message/sendlater/v1", map[string]any{
		"token": ada.Token, "channel_id": cid, "message": "later", "time_sent": s.sched.Now().Unix() + 60,
	}, &sent)
	if code != http.StatusOK {
		t.Fatalf("sendlater: status %d", code)
	}

	target := fmt.Sprintf("/channel/messages/v2?token=%s&channel_id=%d", ada.Token, cid)
	var p page
	s.do(t, http.MethodGet, target, nil, &p)
	if len(p.Messages) != 0 {
		t.Fatalf("deferred message visible early: %+v", p.Messages)
	}

	s.sched.Advance(61 * time.Second)
	s.do(t, http.MethodGet, target, nil, &p)
	if len(p.Messages) != 1 || p.Messages[0].MessageID != sent.MessageID {
		t.Fatalf("deferred message not delivered: %+v", p.Messages)
	}
}

func TestStandupOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "Ada", "Lovelace")
	cid := s.createChannel(t, ada.Token, "general", true)

	var started struct {
		TimeFinish int64 `json:"time_finish"`
	}
	code := s.do(t, http.MethodPost, "/standup/start/v1", map[string]any{
		"token": ada.Token, "channel_id": cid, "length": 10,
	}, &started)
	if code != http.StatusOK || started.TimeFinish != s.sched.Now().Unix()+10 {
		t.Fatalf("start: status %d, finish %d", code, started.TimeFinish)
	}

	var active streams.StandupStatus
	s.do(t, http.MethodGet, fmt.Sprintf("/standup/active/v1?token=%s&channel_id=%d", ada.Token, cid), nil, &active)
	if !active.IsActive || active.TimeFinish == nil || *active.TimeFinish != started.TimeFinish {
		t.Fatalf("unexpected status %+v", active)
	}

	code = s.do(t, http.MethodPost, "/standup/send/v1", map[string]any{
		"token": ada.Token, "channel_id": cid, "message": "shipped it",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("standup send: status %d", code)
	}

	s.sched.Advance(11 * time.Second)
	var p page
	s.do(t, http.MethodGet, fmt.Sprintf("/channel/messages/v2?token=%s&channel_id=%d", ada.Token, cid), nil, &p)
	if len(p.Messages) != 1 || p.Messages[0].Message != "adalovelace: shipped it" {
		t.Fatalf("unexpected standup summary %+v", p.Messages)
	}
}

func TestNotificationStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ada := s.register(t, "Ada", "Lovelace")
	bob := s.register(t, "Bob", "Builder")
	cid := s.createChannel(t, ada.Token, "general", false)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/stream/v1?token=" + bob.Token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return s.app.hub.Connected(bob.UserID) },
		2*time.Second, 10*time.Millisecond)

	code := s.do(t, http.MethodPost, "/channel/invite/v2", map[string]any{
		"token": ada.Token, "channel_id": cid, "u_id": bob.UserID,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n data.Notification
	require.NoError(t, conn.ReadJSON(&n))
	require.Equal(t, cid, n.ChannelID)
	require.Equal(t, data.NoContainer, n.DMID)
	require.Equal(t, "adalovelace added you to general", n.Message)
}

func TestNotificationStreamClosedOnLogout(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	bob := s.register(t, "Bob", "Builder")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/stream/v1?token=" + bob.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	require.Eventually(t, func() bool { return s.app.hub.Connected(bob.UserID) },
		2*time.Second, 10*time.Millisecond)

	code := s.do(t, http.MethodPost, "/auth/logout/v1", map[string]string{"token": bob.Token}, nil)
	require.Equal(t, http.StatusOK, code)
	require.False(t, s.app.hub.Connected(bob.UserID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected a normal close, got %v", err)
}

func TestNotificationStreamRejectsBadToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/stream/v1?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
