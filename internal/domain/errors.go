package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("actor is not the request's custodian")
	ErrAlreadyDecided      = errors.New("request already decided")
	ErrAlreadyReturned     = errors.New("assignment already returned")
	ErrNoCustodianAssigned = errors.New("no custodian assigned")

	// ErrSettlementFailed wraps persistence failures inside the settlement
	// transaction. The request stays pending and the caller may retry; the
	// idempotency keys make a retry safe.
	ErrSettlementFailed = errors.New("settlement failed")
)
