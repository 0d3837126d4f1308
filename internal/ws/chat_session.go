package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/chat"
	"github.com/jaaahooou/apka-inz/internal/domain"
)

// chatSession is the per-connection state for one chat room. Delivery events
// published to the room group land on the session's send channel and reach
// the peer without reprocessing; inbound frames go through the shared chat
// service so the live path and the synchronous path stay identical.
type chatSession struct {
	log  *slog.Logger
	bus  bus.Bus
	chat *chat.Service
	user *domain.User
	room domain.RoomAddress
	send chan []byte

	leaveOnce sync.Once
}

func (s *chatSession) join() {
	s.bus.Subscribe(s.room.ChatGroup(), s.send)
	s.log.Info("joined room", "room", s.room)
}

// leave is idempotent; a session that never joined unsubscribes harmlessly.
func (s *chatSession) leave() {
	s.leaveOnce.Do(func() {
		s.bus.Unsubscribe(s.room.ChatGroup(), s.send)
		s.log.Info("left room", "room", s.room)
	})
}

// handleFrame processes one inbound frame. Malformed frames and failed sends
// are dropped: the failure is local to this event, the connection stays up,
// and nothing is broadcast.
func (s *chatSession) handleFrame(ctx context.Context, data []byte) {
	var frame domain.ChatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Debug("dropping unparseable frame", "error", err)
		return
	}
	if frame.Type != domain.FrameChatMessage {
		s.log.Debug("dropping frame of unknown type", "type", frame.Type)
		return
	}

	_, err := s.chat.Send(ctx, s.user.ID, chat.SendRequest{
		RecipientID: frame.RecipientID,
		Content:     frame.Content,
		Attachment:  frame.Attachment,
		TempID:      frame.TempID,
	})
	if err != nil {
		s.log.Warn("send failed, frame dropped", "error", err)
	}
}

// ChatHandler upgrades /ws/chat/{room} connections and runs a chatSession for
// each. Anonymous principals are rejected before the room selector is even
// parsed.
type ChatHandler struct {
	Log  *slog.Logger
	Bus  bus.Bus
	Chat *chat.Service
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := Principal(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	room, err := domain.ParseRoomAddress(r.PathValue("room"))
	if err != nil {
		h.Log.Warn("rejecting chat connection", "user_id", user.ID, "error", err)
		http.Error(w, "bad room selector", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("upgrade failed", "error", err)
		return
	}

	session := &chatSession{
		log:  h.Log.With("user_id", user.ID, "room", room),
		bus:  h.Bus,
		chat: h.Chat,
		user: user,
		room: room,
	}
	client := newClient(conn, session.log, session.leave)
	session.send = client.send

	session.join()
	go client.writePump()
	client.readPump(func(data []byte) {
		session.handleFrame(r.Context(), data)
	})
}
