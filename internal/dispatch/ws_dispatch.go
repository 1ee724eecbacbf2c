package dispatch

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
)

const writeWait = 5 * time.Second

// WSSession is one client watching the routes of a date.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev models.RouteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

// RouteFeed fans route events out to the websocket sessions subscribed to
// the event's date.
type RouteFeed struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewRouteFeed(logger *slog.Logger) *RouteFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteFeed{
		sessions: make(map[string]map[*WSSession]struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger,
	}
}

func (f *RouteFeed) Add(date string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[date] == nil {
		f.sessions[date] = make(map[*WSSession]struct{})
	}
	f.sessions[date][s] = struct{}{}
	observability.FeedSubscribers.Inc()
	return s
}

func (f *RouteFeed) Remove(date string, s *WSSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[date][s]; !ok {
		return
	}
	delete(f.sessions[date], s)
	if len(f.sessions[date]) == 0 {
		delete(f.sessions, date)
	}
	observability.FeedSubscribers.Dec()
	_ = s.conn.Close()
}

// Publish sends ev to every subscriber of ev.Date and returns how many
// received it. Sessions that fail to receive are dropped.
func (f *RouteFeed) Publish(ev models.RouteEvent) int {
	f.mu.RLock()
	targets := make([]*WSSession, 0, len(f.sessions[ev.Date]))
	for s := range f.sessions[ev.Date] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			f.logger.Warn("ws send error", "date", ev.Date, "err", err)
			f.Remove(ev.Date, s)
			continue
		}
		sent++
	}
	return sent
}

// Subscribers reports the open sessions for date.
func (f *RouteFeed) Subscribers(date string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions[date])
}

// ServeWS upgrades the request and keeps the session registered until the
// client goes away. date must already be validated.
func (f *RouteFeed) ServeWS(w http.ResponseWriter, r *http.Request, date string) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	s := f.Add(date, conn)
	defer f.Remove(date, s)
	for {
		// clients only listen; reading surfaces close frames and dead peers
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
