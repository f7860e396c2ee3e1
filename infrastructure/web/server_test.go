package web_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/infrastructure/web"
	"client-portal/observability"
	"client-portal/runtime"
	"client-portal/storage"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type fakeSessions struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (f *fakeSessions) Resolve(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return domain.User{}, errors.ErrSessionInvalid
	}
	return user, nil
}

func (f *fakeSessions) Active(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[id]
	return ok
}

func (f *fakeSessions) revoke(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

type fixture struct {
	url      string
	registry *runtime.Registry
	objects  *storage.ObjectStore
	server   *web.Server
	sessions *fakeSessions
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := slog.Default()
	registry := runtime.NewRegistry(log)
	objects := storage.NewObjectStore(log, t.TempDir(), auth.NewURLSigner([]byte("test-signing-key-0123456789")), 1<<20, "/files")
	sessions := &fakeSessions{users: map[string]domain.User{
		"client-session": {ID: "client-1", Role: domain.RoleClient},
		"admin-session":  {ID: "admin-1", Role: domain.RoleAdmin},
	}}
	server := web.NewServer(log, sessions, registry, objects, observability.NewMetrics(), 8, 50*time.Millisecond)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})
	return fixture{url: httpServer.URL, registry: registry, objects: objects, server: server, sessions: sessions}
}

func (f fixture) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(f.url, "http") + "/ws?" + query
}

func TestServer_Websocket_Forwards_Channel_Messages(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a client connected to its own notification channel
	channel := domain.NotificationChannel("client-1")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("channel="+channel+"&session=client-session"), nil)
	req.NoError(err)
	defer func() { _ = conn.Close() }()
	req.Eventually(func() bool { return f.registry.SubscriberCount(channel) == 1 }, time.Second, 10*time.Millisecond)

	// When a message is published on that channel
	req.True(f.registry.Publish(channel, `{"title":"hello"}`))

	// Then it arrives as a text frame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.TextMessage, kind)
	req.JSONEq(`{"title":"hello"}`, string(data))
}

func TestServer_Websocket_Accepts_Bearer_Header(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer admin-session")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("channel="+domain.BroadcastChannel), header)
	req.NoError(err)
	_ = conn.Close()
}

func TestServer_Websocket_Unsubscribes_When_Peer_Leaves(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	channel := domain.NotificationChannel("client-1")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("channel="+channel+"&session=client-session"), nil)
	req.NoError(err)
	req.Eventually(func() bool { return f.registry.SubscriberCount(channel) == 1 }, time.Second, 10*time.Millisecond)

	// When the client closes the socket
	_ = conn.Close()

	// Then the subscription is released
	req.Eventually(func() bool { return f.registry.SubscriberCount(channel) == 0 }, time.Second, 10*time.Millisecond)
}

func TestServer_Websocket_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing channel", query: "session=client-session", status: http.StatusBadRequest},
		{name: "unknown session", query: "channel=broadcast&session=nope", status: http.StatusUnauthorized},
		{name: "foreign channel", query: "channel=" + domain.NotificationChannel("client-2") + "&session=client-session", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(tt.query), nil)
			req.ErrorIs(err, websocket.ErrBadHandshake)
			req.NotNil(resp)
			req.Equal(tt.status, resp.StatusCode)
		})
	}
}

func TestServer_Close_Ends_Open_Sockets(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("channel=broadcast&session=client-session"), nil)
	req.NoError(err)
	defer func() { _ = conn.Close() }()
	req.Eventually(func() bool { return f.registry.SubscriberCount("broadcast") == 1 }, time.Second, 10*time.Millisecond)

	f.server.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestServer_Files(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given an uploaded pdf and a signed URL for it
	_, err := f.objects.Upload(context.Background(), "deliverables", "p1/report.pdf", pdf)
	req.NoError(err)
	signed, err := f.objects.CreateSignedURL("deliverables", "p1/report.pdf", time.Minute)
	req.NoError(err)

	// When the URL is fetched
	resp, err := http.Get(f.url + signed)
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	// Then the file is served with its detected type
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(pdf, body)
	req.Equal("application/pdf", resp.Header.Get("Content-Type"))
	req.Contains(resp.Header.Get("Content-Disposition"), "report.pdf")

	// And a forged token is refused
	bad, err := http.Get(f.url + "/files?token=forged")
	req.NoError(err)
	_ = bad.Body.Close()
	req.Equal(http.StatusForbidden, bad.StatusCode)
}

func TestServer_Files_Missing_Object(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	signed, err := f.objects.CreateSignedURL("deliverables", "p1/gone.pdf", time.Minute)
	req.NoError(err)
	resp, err := http.Get(f.url + signed)
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics_And_Health(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, err := http.Get(f.url + "/metrics")
	req.NoError(err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(string(body), "portal_realtime_websocket_connections")

	health, err := http.Get(f.url + "/healthz")
	req.NoError(err)
	_ = health.Body.Close()
	req.Equal(http.StatusOK, health.StatusCode)
}

func TestServer_Websocket_Closes_When_Session_Ends(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a client connected to its notifications
	channel := domain.NotificationChannel("client-1")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("channel="+channel+"&session=client-session"), nil)
	req.NoError(err)
	defer func() { _ = conn.Close() }()
	req.Eventually(func() bool { return f.registry.SubscriberCount(channel) == 1 }, time.Second, 10*time.Millisecond)

	// When its session is revoked and an event follows
	f.sessions.revoke("client-session")
	req.True(f.registry.Publish(channel, `{"title":"after logout"}`))

	// Then the event is withheld and the socket is closed
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)
	req.Eventually(func() bool { return f.registry.SubscriberCount(channel) == 0 }, time.Second, 10*time.Millisecond)
}
