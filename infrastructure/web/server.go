// Package web serves the browser facing routes: the realtime websocket,
// signed file downloads and the Prometheus metrics.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"

	"client-portal/auth"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/observability"
	"client-portal/sink"
	"client-portal/storage"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// SessionResolver maps a session id to its user. Active is checked for the
// lifetime of a websocket.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (domain.User, error)
	Active(id string) bool
}

type Server struct {
	log             *slog.Logger
	sessions        SessionResolver
	broker          contract.Broker
	objects         *storage.ObjectStore
	metrics         *observability.Metrics
	upgrader        websocket.Upgrader
	bufferSize      int
	deliveryTimeout time.Duration
	closing         chan struct{}
	closeOnce       sync.Once
}

func NewServer(log *slog.Logger, sessions SessionResolver, broker contract.Broker, objects *storage.ObjectStore,
	metrics *observability.Metrics, bufferSize int, deliveryTimeout time.Duration) *Server {
	return &Server{
		log:      log,
		sessions: sessions,
		broker:   broker,
		objects:  objects,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		bufferSize:      bufferSize,
		deliveryTimeout: deliveryTimeout,
		closing:         make(chan struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWebsocket)
	mux.HandleFunc("GET /files", s.serveFile)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

// Close ends every open websocket with a close frame. http.Server.Shutdown
// does not track hijacked connections.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) authenticate(r *http.Request) (domain.User, string, error) {
	sessionID := auth.BearerToken(r.Header.Get("Authorization"))
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}
	user, err := s.sessions.Resolve(r.Context(), sessionID)
	return user, sessionID, err
}

// serveWebsocket forwards every message published on ?channel= as a text
// frame until either side closes or the session ends.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	user, sessionID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "invalid or expired session", http.StatusUnauthorized)
		return
	}
	if !domain.CanSubscribe(user, channel) {
		http.Error(w, "channel not allowed", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied
		s.log.Debug("Websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	s.metrics.WebsocketOpened()
	defer s.metrics.WebsocketClosed()

	events := sink.NewStreamSink(s.log, s.bufferSize, s.deliveryTimeout)
	subscription := s.broker.Subscribe(channel, events.Consume(channel))
	defer func() {
		subscription.Unsubscribe()
		events.Close()
	}()
	s.log.Debug("Websocket subscribed", "user_id", user.ID, "channel", channel)

	// Reading is required to process control frames and notice the peer leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	expired := func() bool {
		if s.sessions.Active(sessionID) {
			return false
		}
		s.log.Info("Websocket closed, session ended", "user_id", user.ID, "channel", channel)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"),
			time.Now().Add(writeTimeout))
		return true
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			s.log.Debug("Websocket left", "user_id", user.ID, "channel", channel)
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is stopping"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			if expired() {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case evt := <-events.Events():
			if expired() {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(evt.Payload)); err != nil {
				s.log.Warn("Websocket write failed", "user_id", user.ID, "channel", channel, "error", err)
				return
			}
		}
	}
}

// serveFile streams the object granted by ?token=, a signed URL created by
// the object store.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	file, object, err := s.objects.Open(r.URL.Query().Get("token"))
	switch {
	case errors.Is(err, errors.ErrInvalidSignedURL):
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	case errors.Is(err, errors.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	defer func() { _ = file.Close() }()

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", detected.String())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(object.Path)+`"`)
	http.ServeContent(w, r, path.Base(object.Path), time.Time{}, file)
}
