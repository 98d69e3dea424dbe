package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/office-hub/internal/events"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

// newUpgrader accepts browser connections only from the configured CORS
// origins. Requests without an Origin header come from non-browser clients.
func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originAllowed(allowed, origin)
		},
	}
}

// originAllowed matches origin the way go-chi/cors does: exact,
// case-insensitive, "*" for any and a single "*" wildcard within a pattern.
func originAllowed(allowed []string, origin string) bool {
	origin = strings.ToLower(origin)
	for _, pattern := range allowed {
		pattern = strings.ToLower(pattern)
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(pattern, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// handleCollectionLive streams progress updates of one collection. The
// first frame is the current state; later frames follow each committed
// payment.
func (s *Server) handleCollectionLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// subscribe before reading the snapshot so no update is lost in between
	sub := s.hub.Subscribe(id)
	defer sub.Close()

	view, err := s.ledger.GetCollection(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get collection")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("live feed connected", "collection_id", id, "subscribers", s.hub.Subscribers(id))

	var order events.Ordered
	snapshot := events.NewProgress(view.Collection)
	order.Accept(snapshot)
	if err := s.sendLive(conn, snapshot); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Hub -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()
		defer cancel()

		ticker := time.NewTicker(livePingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.C():
				if !ok {
					return
				}
				if !order.Accept(msg) {
					continue
				}
				if err := s.sendLive(conn, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
					slog.Debug("live ping failed", "error", err)
					return
				}
			}
		}
	}()

	// WebSocket -> discard; only used to notice the client leaving
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	wg.Wait()
	slog.Info("live feed disconnected", "collection_id", id)
}

func (s *Server) sendLive(conn *websocket.Conn, msg interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("failed to send live message", "error", err)
		return err
	}
	return nil
}
