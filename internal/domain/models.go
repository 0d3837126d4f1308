package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsOnline  bool      `json:"is_online"`
	IsVisible bool      `json:"is_visible"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName is the human-readable form used in notification texts.
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return u.FirstName + " " + u.LastName
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Content     string    `json:"content"`
	Attachment  string    `json:"attachment,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Room is the canonical address of the two-party room this message belongs to.
func (m *Message) Room() RoomAddress {
	return NewRoomAddress(m.SenderID, m.RecipientID)
}

type Notification struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Type       string     `json:"notification_type"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CaseID     *int64     `json:"case_id,omitempty"`
	HearingID  *int64     `json:"hearing_id,omitempty"`
	DocumentID *int64     `json:"document_id,omitempty"`
	SenderID   *int64     `json:"sender_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const (
	NotificationStatusChanged  = "status_changed"
	NotificationHearing        = "hearing_reminder"
	NotificationDocumentAdded  = "document_added"
	NotificationNewParticipant = "new_participant"
	NotificationMessage        = "message"
)
