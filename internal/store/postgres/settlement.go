package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pranavch/cashdesk/internal/domain"
)

// ExecSettlement executes the approval settlement as one transaction:
// lock the request row, re-check the requester's funds, apply the debit
// and credit under their idempotency keys, compare-and-set the request to
// approved and mark the oldest covering assignment returned. If any step
// fails the transaction rolls back and the request stays pending.
func (s *Store) ExecSettlement(ctx context.Context, requestID uuid.UUID, approverID string) (*domain.SettlementResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, settlementFailed("tx begin", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the request. This serializes racing deciders up front.
	var (
		requesterID, custodianID string
		num                      pgtype.Numeric
		status                   domain.RequestStatus
	)
	err = tx.QueryRow(ctx,
		"SELECT requester_id, custodian_id, amount, status FROM return_requests WHERE id = $1 FOR UPDATE",
		requestID,
	).Scan(&requesterID, &custodianID, &num, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, settlementFailed("request lock", err)
	}
	amount := pgNumericToDecimal(num)

	if status != domain.StatusPending {
		// Only one decision per request ever succeeds, retries included.
		return nil, domain.ErrAlreadyDecided
	}

	if approverID != custodianID {
		return nil, domain.ErrNotAuthorized
	}

	// 2. Debit then credit. Account rows are locked in deterministic
	// (lexicographic) order inside applyDeltaTx callers, so lock them here
	// explicitly before touching balances.
	first, second := requesterID, custodianID
	if first > second {
		first, second = second, first
	}
	for _, holder := range []string{first, second} {
		_, err = tx.Exec(ctx,
			"INSERT INTO accounts (holder_id, balance) VALUES ($1, 0) ON CONFLICT (holder_id) DO NOTHING",
			holder,
		)
		if err != nil {
			return nil, settlementFailed("account upsert", err)
		}
		if _, err = tx.Exec(ctx, "SELECT balance FROM accounts WHERE holder_id = $1 FOR UPDATE", holder); err != nil {
			return nil, settlementFailed("account lock", err)
		}
	}

	// 3. Re-check funds: the balance may have shrunk since the request was
	// created. The approval attempt is rejected rather than driving the
	// balance negative.
	if _, err = applyDeltaTx(ctx, tx, requesterID, amount.Neg(), domain.DebitKey(requestID)); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, settlementFailed("debit", err)
	}
	if _, err = applyDeltaTx(ctx, tx, custodianID, amount, domain.CreditKey(requestID)); err != nil {
		return nil, settlementFailed("credit", err)
	}

	// 4. pending -> approved compare-and-set.
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		"UPDATE return_requests SET status = $2, decided_at = $3, decided_by = $4 WHERE id = $1 AND status = $5",
		requestID, domain.StatusApproved, now, approverID, domain.StatusPending,
	)
	if err != nil {
		return nil, settlementFailed("status update", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, domain.ErrAlreadyDecided
	}

	result := &domain.SettlementResult{
		RequestID:      requestID,
		DebitedHolder:  requesterID,
		CreditedHolder: custodianID,
		Amount:         amount,
		SettledAt:      now,
	}

	// 5. Mark the oldest unreturned assignment that covers the amount,
	// if one exists. Requests settle against the aggregate balance, so
	// having no covering assignment is not an error.
	amountNum, err := decimalToPgNumeric(amount)
	if err != nil {
		return nil, settlementFailed("amount encode", err)
	}
	var assignmentID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM assignments
		 WHERE custodian_id = $1 AND recipient_id = $2 AND is_returned = FALSE AND amount >= $3
		 ORDER BY assigned_at ASC LIMIT 1 FOR UPDATE`,
		custodianID, requesterID, amountNum,
	).Scan(&assignmentID)
	switch {
	case err == nil:
		tag, err = tx.Exec(ctx,
			"UPDATE assignments SET is_returned = TRUE, returned_at = $2, settlement_ref = $3 WHERE id = $1 AND is_returned = FALSE",
			assignmentID, now, requestID,
		)
		if err != nil {
			return nil, settlementFailed("assignment update", err)
		}
		if tag.RowsAffected() != 1 {
			return nil, domain.ErrAlreadyReturned
		}
		result.AssignmentID = &assignmentID
	case errors.Is(err, pgx.ErrNoRows):
		// Assignments stay plain historical records.
	default:
		return nil, settlementFailed("assignment lookup", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, settlementFailed("tx commit", err)
	}
	return result, nil
}

func settlementFailed(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrSettlementFailed, stage, err)
}
