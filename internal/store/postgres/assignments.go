package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pranavch/cashdesk/internal/domain"
)

const assignmentColumns = "id, custodian_id, recipient_id, amount, assigned_at, is_returned, returned_at, settlement_ref"

func (s *Store) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	if a.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	num, err := decimalToPgNumeric(a.Amount)
	if err != nil {
		return domain.ErrInvalidAmount
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO assignments (id, custodian_id, recipient_id, amount, assigned_at) VALUES ($1, $2, $3, $4, $5)",
		a.ID, a.CustodianID, a.RecipientID, num, a.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("assignment insert failed: %w", err)
	}
	return nil
}

// MarkReturned flips is_returned exactly once. The WHERE clause is the
// compare-and-set: zero affected rows on an existing assignment means a
// second settlement attempt, which is a hard error.
func (s *Store) MarkReturned(ctx context.Context, id uuid.UUID, settlementRef uuid.UUID, returnedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE assignments SET is_returned = TRUE, returned_at = $2, settlement_ref = $3 WHERE id = $1 AND is_returned = FALSE",
		id, returnedAt, settlementRef,
	)
	if err != nil {
		return fmt.Errorf("assignment update failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM assignments WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("assignment lookup failed: %w", err)
	}
	if exists {
		return domain.ErrAlreadyReturned
	}
	return domain.ErrNotFound
}

func (s *Store) AssignmentsForCustodian(ctx context.Context, custodianID string) ([]domain.Assignment, error) {
	return s.listAssignments(ctx, "custodian_id", custodianID)
}

func (s *Store) AssignmentsForRecipient(ctx context.Context, recipientID string) ([]domain.Assignment, error) {
	return s.listAssignments(ctx, "recipient_id", recipientID)
}

func (s *Store) listAssignments(ctx context.Context, column, value string) ([]domain.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE %s = $1 ORDER BY assigned_at DESC", assignmentColumns, column)
	rows, err := s.pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("assignment query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var (
		a   domain.Assignment
		num pgtype.Numeric
	)
	err := row.Scan(&a.ID, &a.CustodianID, &a.RecipientID, &num, &a.AssignedAt, &a.IsReturned, &a.ReturnedAt, &a.SettlementRef)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("assignment scan failed: %w", err)
	}
	a.Amount = pgNumericToDecimal(num)
	return a, nil
}
