package notify

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/jaaahooou/apka-inz/internal/domain"
)

const (
	EventTypeCaseStatusChanged = "CASE_STATUS_CHANGED"
	EventTypeHearingCreated    = "HEARING_CREATED"
	EventTypeDocumentAdded     = "DOCUMENT_ADDED"
	EventTypeParticipantAdded  = "PARTICIPANT_ADDED"
	EventTypeMessageCreated    = "MESSAGE_CREATED"
)

// Event is a domain occurrence the fan-out trigger reacts to. The set is
// closed: each variant knows its event type and computes the notification
// rows it produces, one per eligible recipient. Producers fire an Event
// synchronously after committing their own state change.
type Event interface {
	EventType() string
	notifications() []*domain.Notification
}

type CaseStatusChanged struct {
	CaseID     int64
	CaseNumber string
	Status     string
	CreatorID  int64
}

func (e CaseStatusChanged) EventType() string { return EventTypeCaseStatusChanged }

func (e CaseStatusChanged) notifications() []*domain.Notification {
	if e.CreatorID == 0 {
		return nil
	}
	return []*domain.Notification{{
		UserID:  e.CreatorID,
		Title:   "Case status changed",
		Message: fmt.Sprintf("Status of case %s changed to: %s", e.CaseNumber, e.Status),
		Type:    domain.NotificationStatusChanged,
		CaseID:  &e.CaseID,
	}}
}

type HearingCreated struct {
	HearingID     int64
	CaseID        int64
	CaseNumber    string
	ScheduledAt   time.Time
	JudgeID       int64
	CaseCreatorID int64
}

func (e HearingCreated) EventType() string { return EventTypeHearingCreated }

func (e HearingCreated) notifications() []*domain.Notification {
	recipients := lo.Filter(lo.Uniq([]int64{e.JudgeID, e.CaseCreatorID}), func(id int64, _ int) bool {
		return id != 0
	})
	return lo.Map(recipients, func(id int64, _ int) *domain.Notification {
		title := "Hearing scheduled"
		if id == e.JudgeID {
			title = "New hearing"
		}
		return &domain.Notification{
			UserID:    id,
			Title:     title,
			Message:   fmt.Sprintf("Hearing in case %s on %s", e.CaseNumber, e.ScheduledAt.Format("2006-01-02 15:04")),
			Type:      domain.NotificationHearing,
			CaseID:    &e.CaseID,
			HearingID: &e.HearingID,
		}
	})
}

type DocumentAdded struct {
	DocumentID int64
	CaseID     int64
	CaseNumber string
	Title      string
	UploaderID int64
	JudgeID    int64
}

func (e DocumentAdded) EventType() string { return EventTypeDocumentAdded }

// The assigned judge is notified unless the judge uploaded the document.
func (e DocumentAdded) notifications() []*domain.Notification {
	if e.JudgeID == 0 || e.JudgeID == e.UploaderID {
		return nil
	}
	return []*domain.Notification{{
		UserID:     e.JudgeID,
		Title:      "New document",
		Message:    fmt.Sprintf("Document added: %s in case %s", e.Title, e.CaseNumber),
		Type:       domain.NotificationDocumentAdded,
		CaseID:     &e.CaseID,
		DocumentID: &e.DocumentID,
		SenderID:   &e.UploaderID,
	}}
}

type ParticipantAdded struct {
	CaseID     int64
	CaseNumber string
	RoleInCase string
	UserID     int64
}

func (e ParticipantAdded) EventType() string { return EventTypeParticipantAdded }

func (e ParticipantAdded) notifications() []*domain.Notification {
	if e.UserID == 0 {
		return nil
	}
	return []*domain.Notification{{
		UserID:  e.UserID,
		Title:   "Added to case",
		Message: fmt.Sprintf("You were added as %s to case %s", e.RoleInCase, e.CaseNumber),
		Type:    domain.NotificationNewParticipant,
		CaseID:  &e.CaseID,
	}}
}

type MessageCreated struct {
	Message    *domain.Message
	SenderName string
}

func (e MessageCreated) EventType() string { return EventTypeMessageCreated }

func (e MessageCreated) notifications() []*domain.Notification {
	if e.Message == nil || e.Message.RecipientID == 0 {
		return nil
	}
	return []*domain.Notification{{
		UserID:   e.Message.RecipientID,
		Title:    fmt.Sprintf("Message from %s", e.SenderName),
		Message:  preview(e.Message.Content),
		Type:     domain.NotificationMessage,
		SenderID: &e.Message.SenderID,
	}}
}

const previewRunes = 50

func preview(content string) string {
	if content == "" {
		return "Attachment received"
	}
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "..."
}
