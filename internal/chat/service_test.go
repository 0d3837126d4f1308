package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/domain"
	"github.com/jaaahooou/apka-inz/internal/notify"
)

type fakeMessages struct {
	created []*domain.Message
	err     error
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg *domain.Message) error {
	if f.err != nil {
		return f.err
	}
	msg.ID = int64(len(f.created) + 1)
	msg.CreatedAt = time.Now()
	f.created = append(f.created, msg)
	return nil
}

type fakeUsers map[int64]*domain.User

func (f fakeUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

type fakeNotifications struct {
	rows []*domain.Notification
}

func (f *fakeNotifications) CreateNotification(_ context.Context, n *domain.Notification) error {
	n.ID = int64(len(f.rows) + 1)
	n.CreatedAt = time.Now()
	f.rows = append(f.rows, n)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(messages *fakeMessages, users fakeUsers, b bus.Bus, notifs *fakeNotifications) *Service {
	notifier := notify.NewNotifier(discard(), notifs, b, nil)
	return NewService(discard(), messages, users, b, notifier)
}

func testUsers() fakeUsers {
	return fakeUsers{
		5: {ID: 5, FirstName: "Anna", LastName: "Kowalska", IsActive: true},
		9: {ID: 9, FirstName: "Jan", LastName: "Nowak", IsActive: true},
	}
}

func TestSendPublishesDeliveryWithTempID(t *testing.T) {
	b := bus.NewMemory(discard())
	messages := &fakeMessages{}
	notifs := &fakeNotifications{}
	svc := newTestService(messages, testUsers(), b, notifs)

	room := make(chan []byte, 2)
	b.Subscribe("chat_5_9", room)
	private := make(chan []byte, 2)
	b.Subscribe("notifications_9", private)

	msg, err := svc.Send(context.Background(), 5, SendRequest{
		RecipientID: 9, Content: "hi", TempID: "abc",
	})
	require.NoError(t, err)
	require.NotZero(t, msg.ID)
	require.Len(t, messages.created, 1)

	var event domain.DeliveryEvent
	require.NoError(t, json.Unmarshal(<-room, &event))
	require.Equal(t, domain.FrameChatMessage, event.Type)
	require.Equal(t, "abc", event.TempID)
	require.Equal(t, int64(5), event.Message.SenderID)
	require.Equal(t, int64(9), event.Message.RecipientID)
	require.Equal(t, "hi", event.Message.Content)

	// Recipient also gets a durable notification pushed to their private group.
	require.Len(t, notifs.rows, 1)
	require.Equal(t, int64(9), notifs.rows[0].UserID)
	require.Equal(t, domain.NotificationMessage, notifs.rows[0].Type)
	require.Equal(t, "Message from Anna Kowalska", notifs.rows[0].Title)

	var notifEvent domain.NotificationEvent
	require.NoError(t, json.Unmarshal(<-private, &notifEvent))
	require.Equal(t, domain.FrameNotification, notifEvent.Type)
	require.Equal(t, "hi", notifEvent.Data.Message)
}

func TestSendWithoutTempID(t *testing.T) {
	b := bus.NewMemory(discard())
	svc := newTestService(&fakeMessages{}, testUsers(), b, &fakeNotifications{})

	room := make(chan []byte, 1)
	b.Subscribe("chat_5_9", room)

	_, err := svc.Send(context.Background(), 9, SendRequest{RecipientID: 5, Content: "yo"})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(<-room, &raw))
	require.NotContains(t, raw, "temp_id")
}

func TestSendAttachmentOnly(t *testing.T) {
	b := bus.NewMemory(discard())
	messages := &fakeMessages{}
	svc := newTestService(messages, testUsers(), b, &fakeNotifications{})

	_, err := svc.Send(context.Background(), 5, SendRequest{
		RecipientID: 9, Attachment: "documents/writ.pdf",
	})
	require.NoError(t, err)
	require.Len(t, messages.created, 1)
}

func TestSendRejectsEmptyBody(t *testing.T) {
	messages := &fakeMessages{}
	svc := newTestService(messages, testUsers(), bus.NewMemory(discard()), &fakeNotifications{})

	_, err := svc.Send(context.Background(), 5, SendRequest{RecipientID: 9})
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Empty(t, messages.created)
}

func TestSendRejectsSelf(t *testing.T) {
	svc := newTestService(&fakeMessages{}, testUsers(), bus.NewMemory(discard()), &fakeNotifications{})
	_, err := svc.Send(context.Background(), 5, SendRequest{RecipientID: 5, Content: "hi"})
	require.ErrorIs(t, err, ErrSelfMessage)
}

func TestSendRejectsMissingRecipient(t *testing.T) {
	svc := newTestService(&fakeMessages{}, testUsers(), bus.NewMemory(discard()), &fakeNotifications{})
	_, err := svc.Send(context.Background(), 5, SendRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSendRejectsUnknownRecipient(t *testing.T) {
	svc := newTestService(&fakeMessages{}, testUsers(), bus.NewMemory(discard()), &fakeNotifications{})
	_, err := svc.Send(context.Background(), 5, SendRequest{RecipientID: 404, Content: "hi"})
	require.ErrorIs(t, err, ErrUnknownRecipient)
}

func TestSendPersistFailureDropsSilently(t *testing.T) {
	b := bus.NewMemory(discard())
	messages := &fakeMessages{err: errors.New("store down")}
	notifs := &fakeNotifications{}
	svc := newTestService(messages, testUsers(), b, notifs)

	room := make(chan []byte, 1)
	b.Subscribe("chat_5_9", room)

	_, err := svc.Send(context.Background(), 5, SendRequest{RecipientID: 9, Content: "hi"})
	require.Error(t, err)
	require.Empty(t, room, "nothing may be broadcast when persistence fails")
	require.Empty(t, notifs.rows)
}
