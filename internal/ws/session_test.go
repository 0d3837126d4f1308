package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/chat"
	"github.com/jaaahooou/apka-inz/internal/domain"
)

type fakeMessages struct {
	created []*domain.Message
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg *domain.Message) error {
	msg.ID = int64(len(f.created) + 1)
	msg.CreatedAt = time.Now()
	f.created = append(f.created, msg)
	return nil
}

type presenceCalls struct {
	online  int
	offline int
}

func (p *presenceCalls) SetOnline(_ context.Context, _ int64, online bool) error {
	if online {
		p.online++
	} else {
		p.offline++
	}
	return nil
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func newChatSession(t *testing.T, b bus.Bus, svc *chat.Service, user *domain.User, selector string) *chatSession {
	t.Helper()
	room, err := domain.ParseRoomAddress(selector)
	require.NoError(t, err)
	return &chatSession{
		log:  discard(),
		bus:  b,
		chat: svc,
		user: user,
		room: room,
		send: make(chan []byte, 8),
	}
}

func TestChatSessionsConvergeOnCanonicalRoom(t *testing.T) {
	b := bus.NewMemory(discard())
	messages := &fakeMessages{}
	users := fakeLookup{3: {ID: 3}, 7: {ID: 7}}
	svc := chat.NewService(discard(), messages, users, b, nil)

	// User 7 opened "3_7", user 3 opened "7_3"; both land in the same group.
	seven := newChatSession(t, b, svc, users[7], "3_7")
	three := newChatSession(t, b, svc, users[3], "7_3")
	seven.join()
	three.join()
	require.Equal(t, seven.room, three.room)

	frame, _ := json.Marshal(domain.ChatFrame{
		Type: domain.FrameChatMessage, RecipientID: 3, Content: "hello", TempID: "x",
	})
	seven.handleFrame(context.Background(), frame)

	for _, session := range []*chatSession{seven, three} {
		var event domain.DeliveryEvent
		require.NoError(t, json.Unmarshal(recv(t, session.send), &event))
		require.Equal(t, "hello", event.Message.Content)
		require.Equal(t, "x", event.TempID, "temp_id must echo to every subscriber, sender included")
	}
	require.Len(t, messages.created, 1)
}

func TestChatSessionDropsMalformedFrames(t *testing.T) {
	b := bus.NewMemory(discard())
	messages := &fakeMessages{}
	users := fakeLookup{3: {ID: 3}, 7: {ID: 7}}
	svc := chat.NewService(discard(), messages, users, b, nil)
	session := newChatSession(t, b, svc, users[7], "3_7")
	session.join()

	session.handleFrame(context.Background(), []byte("{not json"))
	session.handleFrame(context.Background(), []byte(`{"type":"typing"}`))
	session.handleFrame(context.Background(), []byte(`{"type":"chat_message","recipient_id":3}`))

	require.Empty(t, messages.created)
	require.Empty(t, session.send)
}

func TestChatSessionLeaveIsIdempotent(t *testing.T) {
	b := bus.NewMemory(discard())
	session := newChatSession(t, b, nil, &domain.User{ID: 7}, "3_7")
	session.join()
	session.leave()
	session.leave()

	require.NoError(t, b.Publish(context.Background(), session.room.ChatGroup(), "x"))
	require.Empty(t, session.send)
}

func TestChatSessionLeaveWithoutJoin(t *testing.T) {
	session := newChatSession(t, bus.NewMemory(discard()), nil, &domain.User{ID: 7}, "3_7")
	session.leave()
}

func newPresenceSession(b bus.Bus, store PresenceStore, user *domain.User) *presenceSession {
	return &presenceSession{
		log:   discard(),
		bus:   b,
		store: store,
		user:  user,
		send:  make(chan []byte, 8),
	}
}

func presenceEvent(t *testing.T, data []byte) domain.PresenceEvent {
	t.Helper()
	var event domain.PresenceEvent
	require.NoError(t, json.Unmarshal(data, &event))
	require.Equal(t, domain.FramePresenceUpdate, event.Type)
	return event
}

func TestPresenceSessionAnnouncesVisibleUser(t *testing.T) {
	b := bus.NewMemory(discard())
	store := &presenceCalls{}
	observer := make(chan []byte, 4)
	b.Subscribe(domain.PresenceGroup, observer)

	session := newPresenceSession(b, store, &domain.User{ID: 2, IsVisible: true})
	session.start(context.Background())

	require.Equal(t, 1, store.online)
	event := presenceEvent(t, recv(t, observer))
	require.Equal(t, int64(2), event.UserID)
	require.Equal(t, domain.StatusOnline, event.Status)
}

func TestPresenceSessionHiddenUserStaysQuietUntilDisconnect(t *testing.T) {
	b := bus.NewMemory(discard())
	store := &presenceCalls{}
	observer := make(chan []byte, 4)
	b.Subscribe(domain.PresenceGroup, observer)

	session := newPresenceSession(b, store, &domain.User{ID: 2, IsVisible: false})
	session.start(context.Background())
	require.Empty(t, observer, "hidden users never announce online")
	require.Equal(t, 1, store.online)

	session.teardown()
	require.Equal(t, 1, store.offline)
	event := presenceEvent(t, recv(t, observer))
	require.Equal(t, domain.StatusOffline, event.Status, "offline is announced regardless of visibility")
}

func TestPresenceTeardownIsIdempotent(t *testing.T) {
	b := bus.NewMemory(discard())
	store := &presenceCalls{}
	observer := make(chan []byte, 4)
	b.Subscribe(domain.PresenceGroup, observer)

	session := newPresenceSession(b, store, &domain.User{ID: 2, IsVisible: true})
	session.start(context.Background())
	recv(t, observer) // online announcement

	session.teardown()
	session.teardown()
	session.teardown()

	require.Equal(t, 1, store.offline)
	presenceEvent(t, recv(t, observer))
	require.Empty(t, observer, "repeated disconnects announce offline once")
}

func TestPresenceSessionRelaysVisibilityChange(t *testing.T) {
	b := bus.NewMemory(discard())
	store := &presenceCalls{}
	observer := make(chan []byte, 4)
	b.Subscribe(domain.PresenceGroup, observer)

	session := newPresenceSession(b, store, &domain.User{ID: 2, IsVisible: true})
	session.start(context.Background())
	recv(t, observer)

	frame, _ := json.Marshal(domain.VisibilityFrame{Type: domain.FrameVisibilityChange, Status: domain.StatusOffline})
	session.handleFrame(context.Background(), frame)

	event := presenceEvent(t, recv(t, observer))
	require.Equal(t, domain.StatusOffline, event.Status)
	require.Equal(t, 1, store.online, "relay must not touch the stored flags")

	// Bad statuses are dropped.
	frame, _ = json.Marshal(domain.VisibilityFrame{Type: domain.FrameVisibilityChange, Status: "invisible"})
	session.handleFrame(context.Background(), frame)
	require.Empty(t, observer)
}

func TestPresenceSessionForwardsPrivateNotifications(t *testing.T) {
	b := bus.NewMemory(discard())
	session := newPresenceSession(b, &presenceCalls{}, &domain.User{ID: 9, IsVisible: false})
	session.start(context.Background())

	notif := domain.NotificationEvent{
		Type: domain.FrameNotification,
		Data: &domain.Notification{ID: 1, UserID: 9, Title: "New document"},
	}
	require.NoError(t, b.Publish(context.Background(), domain.NotificationGroup(9), notif))

	var got domain.NotificationEvent
	require.NoError(t, json.Unmarshal(recv(t, session.send), &got))
	require.Equal(t, "New document", got.Data.Title)
}
