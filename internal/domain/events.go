package domain

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind classifies a notification event.
type EventKind string

const (
	EventAssignmentCreated EventKind = "assignment_created"
	EventReturnRequested   EventKind = "return_requested"
	EventReturnApproved    EventKind = "return_approved"
	EventReturnRejected    EventKind = "return_rejected"
	EventBalanceChanged    EventKind = "balance_changed"
)

// NotificationEvent is published to interested observers after a state
// change commits. Delivery is at-least-once; consumers deduplicate on ID.
// ULIDs sort by creation time, so per-holder order is recoverable.
type NotificationEvent struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        EventKind `json:"kind"`
	SubjectID   string    `json:"subject_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEvent builds an event addressed to recipientID about subjectID.
func NewEvent(kind EventKind, recipientID, subjectID string) NotificationEvent {
	now := time.Now().UTC()
	return NotificationEvent{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		RecipientID: recipientID,
		Kind:        kind,
		SubjectID:   subjectID,
		CreatedAt:   now,
	}
}
