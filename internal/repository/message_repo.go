package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jaaahooou/apka-inz/internal/domain"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage inserts the message and fills in the generated id and
// timestamp on the passed struct.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (sender_id, recipient_id, content, attachment, is_read)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), FALSE)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.RecipientID, msg.Content, msg.Attachment,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// MarkRead flags a message as read. Only the recipient may do this.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, recipientID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
	`, messageID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark message %d read: %w", messageID, err)
	}
	return requireRow(res, messageID)
}

// UpdateContent edits a message body. Only the sender may do this, and a
// message can never end up with neither content nor attachment.
func (r *MessageRepository) UpdateContent(ctx context.Context, messageID, senderID int64, content string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = $3
		WHERE id = $1 AND sender_id = $2
		  AND (NULLIF($3, '') IS NOT NULL OR attachment IS NOT NULL)
	`, messageID, senderID, content)
	if err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return requireRow(res, messageID)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
