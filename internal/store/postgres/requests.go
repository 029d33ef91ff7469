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

const requestColumns = "id, requester_id, custodian_id, amount, status, requested_at, decided_at, decided_by, rejection_reason"

func (s *Store) CreateRequest(ctx context.Context, r *domain.ReturnRequest) error {
	if r.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	num, err := decimalToPgNumeric(r.Amount)
	if err != nil {
		return domain.ErrInvalidAmount
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO return_requests (id, requester_id, custodian_id, amount, status, requested_at) VALUES ($1, $2, $3, $4, $5, $6)",
		r.ID, r.RequesterID, r.CustodianID, num, r.Status, r.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("request insert failed: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM return_requests WHERE id = $1", id)
	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// MarkRejected is the pending -> rejected compare-and-set. Racing deciders
// get exactly one affected row between them.
func (s *Store) MarkRejected(ctx context.Context, id uuid.UUID, deciderID string, reason *string, decidedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE return_requests SET status = $2, decided_at = $3, decided_by = $4, rejection_reason = $5 WHERE id = $1 AND status = $6",
		id, domain.StatusRejected, decidedAt, deciderID, reason, domain.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("request update failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM return_requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("request lookup failed: %w", err)
	}
	if exists {
		return domain.ErrAlreadyDecided
	}
	return domain.ErrNotFound
}

func (s *Store) RequestsForCustodian(ctx context.Context, custodianID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	return s.listRequests(ctx, "custodian_id", custodianID, status)
}

func (s *Store) RequestsForRequester(ctx context.Context, requesterID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	return s.listRequests(ctx, "requester_id", requesterID, status)
}

func (s *Store) listRequests(ctx context.Context, column, value string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM return_requests WHERE %s = $1", requestColumns, column)
	args := []any{value}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY requested_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("request query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.ReturnRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row rowScanner) (domain.ReturnRequest, error) {
	var (
		r   domain.ReturnRequest
		num pgtype.Numeric
	)
	err := row.Scan(&r.ID, &r.RequesterID, &r.CustodianID, &num, &r.Status, &r.RequestedAt, &r.DecidedAt, &r.DecidedBy, &r.RejectionReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReturnRequest{}, pgx.ErrNoRows
		}
		return domain.ReturnRequest{}, fmt.Errorf("request scan failed: %w", err)
	}
	r.Amount = pgNumericToDecimal(num)
	return r, nil
}
