package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the running custodial balance for one holder.
// Balance is only ever mutated through AccountStore.ApplyDelta.
type Account struct {
	HolderID  string          `json:"holder_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Assignment records a custodian handing cash to a recipient. The record is
// immutable once created except for the return marking, which happens at
// most once as a side effect of an approved return request.
type Assignment struct {
	ID            uuid.UUID       `json:"id"`
	CustodianID   string          `json:"custodian_id"`
	RecipientID   string          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	AssignedAt    time.Time       `json:"assigned_at"`
	IsReturned    bool            `json:"is_returned"`
	ReturnedAt    *time.Time      `json:"returned_at,omitempty"`
	SettlementRef *uuid.UUID      `json:"settlement_ref,omitempty"`
}

// RequestStatus is the state of a return request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether the status admits no further transition.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ReturnRequest is a holder's request to hand funds back to their custodian.
// It is a permanent audit record: created pending, decided exactly once,
// never deleted.
type ReturnRequest struct {
	ID              uuid.UUID       `json:"id"`
	RequesterID     string          `json:"requester_id"`
	CustodianID     string          `json:"custodian_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          RequestStatus   `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	DecidedBy       *string         `json:"decided_by,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
}

// DebitKey and CreditKey derive the idempotency keys for the two balance
// deltas of one settlement, so a retried settlement cannot double-move
// funds.
func DebitKey(requestID uuid.UUID) string  { return requestID.String() + ":debit" }
func CreditKey(requestID uuid.UUID) string { return requestID.String() + ":credit" }

// SettlementResult describes one executed settlement.
type SettlementResult struct {
	RequestID      uuid.UUID       `json:"request_id"`
	DebitedHolder  string          `json:"debited_holder"`
	CreditedHolder string          `json:"credited_holder"`
	Amount         decimal.Decimal `json:"amount"`
	AssignmentID   *uuid.UUID      `json:"assignment_id,omitempty"`
	SettledAt      time.Time       `json:"settled_at"`
}
