// Package notify delivers change notifications to per-holder subscriber
// sets. Delivery is fire-and-forget and at-least-once: a subscriber that
// cannot keep up is dropped, never waited on, so publishing can never
// block or roll back a settlement.
package notify

import (
	"github.com/google/uuid"

	"github.com/pranavch/cashdesk/internal/domain"
)

// AssignmentCreated notifies the recipient that cash was assigned to them.
func AssignmentCreated(recipientID string, assignmentID uuid.UUID) domain.NotificationEvent {
	return domain.NewEvent(domain.EventAssignmentCreated, recipientID, assignmentID.String())
}

// ReturnRequested notifies the custodian of a new pending request.
func ReturnRequested(custodianID string, requestID uuid.UUID) domain.NotificationEvent {
	return domain.NewEvent(domain.EventReturnRequested, custodianID, requestID.String())
}

// ReturnApproved notifies the requester their return settled.
func ReturnApproved(requesterID string, requestID uuid.UUID) domain.NotificationEvent {
	return domain.NewEvent(domain.EventReturnApproved, requesterID, requestID.String())
}

// ReturnRejected notifies the requester their return was declined.
func ReturnRejected(requesterID string, requestID uuid.UUID) domain.NotificationEvent {
	return domain.NewEvent(domain.EventReturnRejected, requesterID, requestID.String())
}

// BalanceChanged notifies a holder that their running balance moved.
func BalanceChanged(holderID string, subjectID uuid.UUID) domain.NotificationEvent {
	return domain.NewEvent(domain.EventBalanceChanged, holderID, subjectID.String())
}

// NoOpPublisher discards events (tests, notifier disabled).
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(domain.NotificationEvent) {}
