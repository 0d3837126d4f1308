package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaaahooou/apka-inz/internal/bus"
	"github.com/jaaahooou/apka-inz/internal/domain"
	"github.com/jaaahooou/apka-inz/internal/journal"
)

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Notifier is the fan-out trigger. For each recipient an event resolves to,
// it persists one notification row and then pushes the row to the recipient's
// private group. The row is the source of truth; the live publish and the
// journal append are best-effort and never undo or block the write.
type Notifier struct {
	log     *slog.Logger
	store   NotificationStore
	bus     bus.Bus
	journal *journal.Journal
}

func NewNotifier(log *slog.Logger, store NotificationStore, b bus.Bus, j *journal.Journal) *Notifier {
	return &Notifier{log: log, store: store, bus: b, journal: j}
}

func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, row := range ev.notifications() {
		if err := n.store.CreateNotification(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("notify user %d: %w", row.UserID, err))
			continue
		}

		event := domain.NotificationEvent{Type: domain.FrameNotification, Data: row}
		if err := n.bus.Publish(ctx, domain.NotificationGroup(row.UserID), event); err != nil {
			n.log.Error("notification publish failed",
				"user_id", row.UserID, "notification_id", row.ID, "error", err)
		}
	}

	if err := n.journal.Append(ev.EventType(), ev); err != nil {
		n.log.Error("journal append failed", "event_type", ev.EventType(), "error", err)
	}

	return errors.Join(errs...)
}
