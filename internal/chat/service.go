package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/domain"
	"github.com/jaaahooou/apka-inz/internal/notify"
)

var (
	ErrInvalidRequest   = errors.New("invalid send request")
	ErrEmptyMessage     = errors.New("message needs content or an attachment")
	ErrSelfMessage      = errors.New("recipient is the sender")
	ErrUnknownRecipient = errors.New("recipient does not exist")
)

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *domain.Message) error
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// SendRequest is a message send, whether it arrived over a live chat
// connection or the synchronous HTTP path. TempID is the client's correlation
// token; it rides along into the published delivery event and is never stored.
type SendRequest struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	Content     string `json:"content"`
	Attachment  string `json:"attachment,omitempty"`
	TempID      string `json:"temp_id,omitempty"`
}

// Service owns the one send path both entry points share: validate, persist,
// publish the delivery event to the canonical room group, fan out the
// recipient notification. Keeping a single implementation is what guarantees
// the live and synchronous paths cannot drift apart.
type Service struct {
	log      *slog.Logger
	messages MessageStore
	users    UserStore
	bus      bus.Bus
	notifier *notify.Notifier
	validate *validator.Validate
}

func NewService(log *slog.Logger, messages MessageStore, users UserStore, b bus.Bus, notifier *notify.Notifier) *Service {
	return &Service{
		log:      log,
		messages: messages,
		users:    users,
		bus:      b,
		notifier: notifier,
		validate: validator.New(),
	}
}

// Send persists a message and publishes its delivery event. The event goes to
// every current subscriber of the room group, including the sender's own
// connection, carrying TempID so the sender can reconcile its optimistic copy.
func (s *Service) Send(ctx context.Context, senderID int64, req SendRequest) (*domain.Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Content == "" && req.Attachment == "" {
		return nil, ErrEmptyMessage
	}
	if req.RecipientID == senderID {
		return nil, ErrSelfMessage
	}

	sender, err := s.users.GetUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("look up sender %d: %w", senderID, err)
	}
	if _, err := s.users.GetUser(ctx, req.RecipientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrUnknownRecipient, req.RecipientID)
		}
		return nil, fmt.Errorf("look up recipient %d: %w", req.RecipientID, err)
	}

	msg := &domain.Message{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		Attachment:  req.Attachment,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	event := domain.DeliveryEvent{
		Type:    domain.FrameChatMessage,
		Message: msg,
		TempID:  req.TempID,
	}
	if err := s.bus.Publish(ctx, msg.Room().ChatGroup(), event); err != nil {
		// The row is durable; live delivery is best-effort.
		s.log.Error("delivery publish failed", "room", msg.Room(), "message_id", msg.ID, "error", err)
	}

	if s.notifier != nil {
		created := notify.MessageCreated{Message: msg, SenderName: sender.DisplayName()}
		if err := s.notifier.Publish(ctx, created); err != nil {
			s.log.Error("message notification failed", "message_id", msg.ID, "error", err)
		}
	}

	return msg, nil
}
