package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
)

const pgUniqueViolation = "23505"

// GetBalance retrieves the current balance for a holder.
func (s *Store) GetBalance(ctx context.Context, holderID string) (decimal.Decimal, error) {
	var num pgtype.Numeric
	err := s.pool.QueryRow(ctx, "SELECT balance FROM accounts WHERE holder_id = $1", holderID).Scan(&num)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("balance query failed: %w", err)
	}
	return pgNumericToDecimal(num), nil
}

// ApplyDelta adjusts a holder's balance inside a transaction that reserves
// the idempotency key and row-locks the account. A replayed key returns
// the current balance without re-applying.
func (s *Store) ApplyDelta(ctx context.Context, holderID string, delta decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return decimal.Zero, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := applyDeltaTx(ctx, tx, holderID, delta, idemKey)
	if err != nil {
		if errors.Is(err, errDeltaReplayed) {
			// Key already consumed; report the balance as it stands.
			_ = tx.Rollback(ctx)
			return s.GetBalance(ctx, holderID)
		}
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("tx commit failed: %w", err)
	}
	return newBalance, nil
}

// errDeltaReplayed signals that the idempotency key was already consumed.
var errDeltaReplayed = errors.New("delta already applied")

// applyDeltaTx performs the key reservation, lock and balance write on an
// open transaction. Shared between ApplyDelta and ExecSettlement.
func applyDeltaTx(ctx context.Context, tx pgx.Tx, holderID string, delta decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	num, err := decimalToPgNumeric(delta)
	if err != nil {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO applied_deltas (key, holder_id, delta) VALUES ($1, $2, $3)",
		idemKey, holderID, num,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return decimal.Zero, errDeltaReplayed
		}
		return decimal.Zero, fmt.Errorf("key reservation failed: %w", err)
	}

	if delta.Sign() > 0 {
		// A credit may target a holder without an account yet.
		_, err = tx.Exec(ctx,
			"INSERT INTO accounts (holder_id, balance) VALUES ($1, 0) ON CONFLICT (holder_id) DO NOTHING",
			holderID,
		)
		if err != nil {
			return decimal.Zero, fmt.Errorf("account upsert failed: %w", err)
		}
	}

	var current pgtype.Numeric
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE holder_id = $1 FOR UPDATE", holderID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Only reachable for a debit against a missing account.
			return decimal.Zero, domain.ErrInsufficientFunds
		}
		return decimal.Zero, fmt.Errorf("lock acquisition failed: %w", err)
	}

	newBalance := pgNumericToDecimal(current).Add(delta)
	if newBalance.Sign() < 0 {
		return decimal.Zero, domain.ErrInsufficientFunds
	}

	newNum, err := decimalToPgNumeric(newBalance)
	if err != nil {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = $1, updated_at = now() WHERE holder_id = $2",
		newNum, holderID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance update failed: %w", err)
	}
	return newBalance, nil
}
