package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStore is the single mutation point for balances.
type AccountStore interface {
	// GetBalance returns the current balance, or ErrNotFound for an
	// unknown holder.
	GetBalance(ctx context.Context, holderID string) (decimal.Decimal, error)

	// ApplyDelta atomically adjusts the holder's balance and returns the
	// new value. A positive delta creates the account if missing. A delta
	// that would drive the balance below zero fails with
	// ErrInsufficientFunds. Presenting the same idemKey twice must not
	// double-apply: the second call returns the current balance unchanged.
	ApplyDelta(ctx context.Context, holderID string, delta decimal.Decimal, idemKey string) (decimal.Decimal, error)
}

// AssignmentLedger persists custodian-to-holder handout records.
type AssignmentLedger interface {
	CreateAssignment(ctx context.Context, a *Assignment) error

	// MarkReturned flips is_returned exactly once. A second call fails
	// with ErrAlreadyReturned so double-settlement bugs surface instead
	// of being swallowed.
	MarkReturned(ctx context.Context, id uuid.UUID, settlementRef uuid.UUID, returnedAt time.Time) error

	// Ordered by assigned_at descending.
	AssignmentsForCustodian(ctx context.Context, custodianID string) ([]Assignment, error)
	AssignmentsForRecipient(ctx context.Context, recipientID string) ([]Assignment, error)
}

// RequestStore persists return requests. Status writes are compare-and-swap
// on pending so concurrent deciders get exactly one success.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *ReturnRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*ReturnRequest, error)

	// MarkRejected transitions pending -> rejected. ErrNotFound if the
	// request is unknown, ErrAlreadyDecided if it is no longer pending.
	MarkRejected(ctx context.Context, id uuid.UUID, deciderID string, reason *string, decidedAt time.Time) error

	RequestsForCustodian(ctx context.Context, custodianID string, status *RequestStatus) ([]ReturnRequest, error)
	RequestsForRequester(ctx context.Context, requesterID string, status *RequestStatus) ([]ReturnRequest, error)
}

// SettlementStore executes the indivisible approval settlement: debit the
// requester, credit the custodian, flip the request to approved and mark
// the oldest covering assignment returned. Either all effects commit or
// none are visible.
type SettlementStore interface {
	ExecSettlement(ctx context.Context, requestID uuid.UUID, approverID string) (*SettlementResult, error)
}

// EventPublisher receives events after the owning transaction commits.
// Publish must never block the caller.
type EventPublisher interface {
	Publish(event NotificationEvent)
}

// DirectoryLookup resolves holder ids to display names. Presentation only,
// never consulted for authorization.
type DirectoryLookup interface {
	DisplayName(ctx context.Context, holderID string) (string, error)
}

// CustodianResolver reports the custodian currently assigned to a holder.
// How the mapping is maintained is outside this core; it fails with
// ErrNoCustodianAssigned when there is none.
type CustodianResolver interface {
	CustodianFor(ctx context.Context, holderID string) (string, error)
}
