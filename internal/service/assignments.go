package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
	"github.com/pranavch/cashdesk/internal/notify"
)

// AssignmentService records custodian-to-holder handouts. The credit side
// is a one-way grant: it increases the recipient's balance immediately and
// only the return workflow can move the funds back.
type AssignmentService struct {
	ledger   domain.AssignmentLedger
	accounts domain.AccountStore
	events   domain.EventPublisher
}

func NewAssignmentService(ledger domain.AssignmentLedger, accounts domain.AccountStore, events domain.EventPublisher) *AssignmentService {
	return &AssignmentService{ledger: ledger, accounts: accounts, events: events}
}

// Assign creates the handout record and credits the recipient. The credit
// is keyed on the assignment id, so a retry after a partial failure cannot
// double-credit.
func (s *AssignmentService) Assign(ctx context.Context, custodianID, recipientID string, amount decimal.Decimal) (*domain.Assignment, error) {
	if amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	a := &domain.Assignment{
		ID:          uuid.New(),
		CustodianID: custodianID,
		RecipientID: recipientID,
		Amount:      amount,
		AssignedAt:  time.Now().UTC(),
	}
	if err := s.ledger.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	if _, err := s.accounts.ApplyDelta(ctx, recipientID, amount, "assign:"+a.ID.String()+":credit"); err != nil {
		return nil, err
	}

	log.Info().
		Str("assignment_id", a.ID.String()).
		Str("custodian_id", custodianID).
		Str("recipient_id", recipientID).
		Str("amount", amount.String()).
		Msg("assignment created")

	s.events.Publish(notify.AssignmentCreated(recipientID, a.ID))
	s.events.Publish(notify.BalanceChanged(recipientID, a.ID))
	return a, nil
}
