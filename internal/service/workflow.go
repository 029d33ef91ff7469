// Package service contains the return-request workflow, the settlement
// coordinator and the assignment/query operations built on the storage
// ports. Services validate and orchestrate; all balance mutation happens
// in the stores.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
	"github.com/pranavch/cashdesk/internal/notify"
)

// ReturnService drives the return-request state machine:
// pending -> approved | rejected, decided exactly once.
type ReturnService struct {
	accounts domain.AccountStore
	requests domain.RequestStore
	resolver domain.CustodianResolver
	settler  *SettlementCoordinator
	events   domain.EventPublisher
}

func NewReturnService(
	accounts domain.AccountStore,
	requests domain.RequestStore,
	resolver domain.CustodianResolver,
	settler *SettlementCoordinator,
	events domain.EventPublisher,
) *ReturnService {
	return &ReturnService{
		accounts: accounts,
		requests: requests,
		resolver: resolver,
		settler:  settler,
		events:   events,
	}
}

// CreateRequest opens a pending return request from the holder to their
// resolved custodian. Balances do not move here: the amount is checked
// against the current balance now and re-checked at settlement, so a
// flurry of pending requests cannot over-commit funds.
func (s *ReturnService) CreateRequest(ctx context.Context, requesterID string, amount decimal.Decimal) (*domain.ReturnRequest, error) {
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	custodianID, err := s.resolver.CustodianFor(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	balance, err := s.accounts.GetBalance(ctx, requesterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	r := &domain.ReturnRequest{
		ID:          uuid.New(),
		RequesterID: requesterID,
		CustodianID: custodianID,
		Amount:      amount,
		Status:      domain.StatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.requests.CreateRequest(ctx, r); err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", r.ID.String()).
		Str("requester_id", requesterID).
		Str("custodian_id", custodianID).
		Str("amount", amount.String()).
		Msg("return request created")

	s.events.Publish(notify.ReturnRequested(custodianID, r.ID))
	return r, nil
}

// Approve settles a pending request. The fast-path precondition checks
// here give callers early errors; the settlement transaction re-runs them
// authoritatively under row locks, so racing approvals still resolve to
// exactly one success.
func (s *ReturnService) Approve(ctx context.Context, requestID uuid.UUID, approverID string) (*domain.SettlementResult, error) {
	r, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, domain.ErrAlreadyDecided
	}
	if approverID != r.CustodianID {
		return nil, domain.ErrNotAuthorized
	}

	return s.settler.Settle(ctx, requestID, approverID)
}

// Reject declines a pending request with an optional reason. No balance
// effect. The store-level compare-and-set is the authoritative guard
// against a concurrent decision.
func (s *ReturnService) Reject(ctx context.Context, requestID uuid.UUID, approverID string, reason *string) (*domain.ReturnRequest, error) {
	r, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, domain.ErrAlreadyDecided
	}
	if approverID != r.CustodianID {
		return nil, domain.ErrNotAuthorized
	}

	now := time.Now().UTC()
	if err := s.requests.MarkRejected(ctx, requestID, approverID, reason, now); err != nil {
		return nil, err
	}

	r.Status = domain.StatusRejected
	r.DecidedAt = &now
	r.DecidedBy = &approverID
	r.RejectionReason = reason

	log.Info().
		Str("request_id", requestID.String()).
		Str("decided_by", approverID).
		Msg("return request rejected")

	s.events.Publish(notify.ReturnRejected(r.RequesterID, requestID))
	return r, nil
}
