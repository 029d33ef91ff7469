package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/pranavch/cashdesk/internal/domain"
	"github.com/pranavch/cashdesk/internal/notify"
)

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cashdesk_settlements_total",
	Help: "Settlement attempts by outcome",
}, []string{"outcome"})

// SettlementCoordinator executes approvals. The store performs the
// indivisible debit/credit/status-flip/assignment-marking; the coordinator
// publishes change notifications strictly after the transaction commits,
// so a failed delivery can never roll back money movement.
type SettlementCoordinator struct {
	store  domain.SettlementStore
	events domain.EventPublisher
}

func NewSettlementCoordinator(store domain.SettlementStore, events domain.EventPublisher) *SettlementCoordinator {
	return &SettlementCoordinator{store: store, events: events}
}

// Settle runs the settlement for a pending request. Safe to retry: a
// second run fails with ErrAlreadyDecided and the idempotency keys
// derived from the request id guarantee no funds move twice.
func (c *SettlementCoordinator) Settle(ctx context.Context, requestID uuid.UUID, approverID string) (*domain.SettlementResult, error) {
	result, err := c.store.ExecSettlement(ctx, requestID, approverID)
	if err != nil {
		settlementsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		log.Warn().
			Err(err).
			Str("request_id", requestID.String()).
			Str("approver_id", approverID).
			Msg("settlement failed")
		return nil, err
	}

	settlementsTotal.WithLabelValues("settled").Inc()
	log.Info().
		Str("request_id", requestID.String()).
		Str("debited", result.DebitedHolder).
		Str("credited", result.CreditedHolder).
		Str("amount", result.Amount.String()).
		Msg("settlement committed")

	c.events.Publish(notify.ReturnApproved(result.DebitedHolder, result.RequestID))
	c.events.Publish(notify.BalanceChanged(result.DebitedHolder, result.RequestID))
	c.events.Publish(notify.BalanceChanged(result.CreditedHolder, result.RequestID))
	return result, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
