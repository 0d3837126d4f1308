package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/domain"
)

// PresenceStore is the single-field online flag setter. It must never rewrite
// the rest of the user row; connect/disconnect races with profile edits.
type PresenceStore interface {
	SetOnline(ctx context.Context, id int64, online bool) error
}

// presenceSession is the per-connection state for a user's private channel.
// It subscribes to the user's notification group and the global presence
// group and forwards whatever lands there verbatim.
type presenceSession struct {
	log   *slog.Logger
	bus   bus.Bus
	store PresenceStore
	user  *domain.User
	send  chan []byte

	closeOnce sync.Once
}

// start subscribes both groups, flips the user online and, if the user wants
// to be seen, announces it. A store failure is logged and does not take the
// connection down.
func (s *presenceSession) start(ctx context.Context) {
	s.bus.Subscribe(domain.NotificationGroup(s.user.ID), s.send)
	s.bus.Subscribe(domain.PresenceGroup, s.send)

	if err := s.store.SetOnline(ctx, s.user.ID, true); err != nil {
		s.log.Error("failed to persist online flag", "error", err)
	}

	if s.user.IsVisible {
		s.announce(ctx, domain.StatusOnline)
	}
	s.log.Info("presence session active")
}

// handleFrame relays a visibility change to the presence group. The stored
// is_visible preference is a profile concern and is not touched here.
func (s *presenceSession) handleFrame(ctx context.Context, data []byte) {
	var frame domain.VisibilityFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Debug("dropping unparseable frame", "error", err)
		return
	}
	if frame.Type != domain.FrameVisibilityChange {
		s.log.Debug("dropping frame of unknown type", "type", frame.Type)
		return
	}
	if frame.Status != domain.StatusOnline && frame.Status != domain.StatusOffline {
		s.log.Debug("dropping visibility change with bad status", "status", frame.Status)
		return
	}
	s.announce(ctx, frame.Status)
}

// teardown flips the user offline and announces it regardless of visibility:
// a hidden user that disconnects still reads as offline to everyone, which is
// indistinguishable from staying hidden. Idempotent under repeated calls.
func (s *presenceSession) teardown() {
	s.closeOnce.Do(func() {
		ctx := context.Background()
		if err := s.store.SetOnline(ctx, s.user.ID, false); err != nil {
			s.log.Error("failed to persist offline flag", "error", err)
		}
		s.announce(ctx, domain.StatusOffline)

		s.bus.Unsubscribe(domain.NotificationGroup(s.user.ID), s.send)
		s.bus.Unsubscribe(domain.PresenceGroup, s.send)
		s.log.Info("presence session closed")
	})
}

func (s *presenceSession) announce(ctx context.Context, status string) {
	event := domain.PresenceEvent{
		Type:   domain.FramePresenceUpdate,
		UserID: s.user.ID,
		Status: status,
	}
	if err := s.bus.Publish(ctx, domain.PresenceGroup, event); err != nil {
		s.log.Error("presence publish failed", "status", status, "error", err)
	}
}

// PresenceHandler upgrades /ws/notifications connections and runs a
// presenceSession for each. Anonymous principals are rejected up front.
type PresenceHandler struct {
	Log   *slog.Logger
	Bus   bus.Bus
	Store PresenceStore
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := Principal(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("upgrade failed", "error", err)
		return
	}

	session := &presenceSession{
		log:   h.Log.With("user_id", user.ID),
		bus:   h.Bus,
		store: h.Store,
		user:  user,
	}
	client := newClient(conn, session.log, session.teardown)
	session.send = client.send

	session.start(r.Context())
	go client.writePump()
	client.readPump(func(data []byte) {
		session.handleFrame(r.Context(), data)
	})
}
