package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jaaahooou/apka-inz/internal/domain"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications
			(user_id, title, message, notification_type, is_read, case_id, hearing_id, document_id, sender_id)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		n.UserID, n.Title, n.Message, n.Type,
		n.CaseID, n.HearingID, n.DocumentID, n.SenderID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// MarkNotificationRead sets is_read and read_at together in one statement so
// the pair can never be observed out of sync.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_read
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListNotifications returns a user's notifications, unread first, newest
// first within each bucket. This is the poll path for clients that were
// offline when the live publish happened.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, title, message, notification_type, is_read, read_at,
		       case_id, hearing_id, document_id, sender_id, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY is_read ASC, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var readAt sql.NullTime
		err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &readAt,
			&n.CaseID, &n.HearingID, &n.DocumentID, &n.SenderID, &n.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
