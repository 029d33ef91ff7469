// Package memory provides a mutex-guarded in-process implementation of the
// storage ports. It backs unit tests and the seeder's dry-run mode and
// mirrors the transactional semantics of the postgres store: settlement is
// all-or-nothing, status writes are compare-and-swap, deltas are
// idempotency-keyed.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
)

type Store struct {
	mu          sync.Mutex
	accounts    map[string]*domain.Account
	assignments []*domain.Assignment
	requests    map[uuid.UUID]*domain.ReturnRequest
	applied     map[string]struct{}
	custodians  map[string]string
	names       map[string]string
}

func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]*domain.Account),
		requests:   make(map[uuid.UUID]*domain.ReturnRequest),
		applied:    make(map[string]struct{}),
		custodians: make(map[string]string),
		names:      make(map[string]string),
	}
}

// SetCustodian installs a holder -> custodian mapping.
func (s *Store) SetCustodian(holderID, custodianID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custodians[holderID] = custodianID
}

// SetDisplayName installs a holder -> display name mapping.
func (s *Store) SetDisplayName(holderID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[holderID] = name
}

// CustodianFor implements domain.CustodianResolver.
func (s *Store) CustodianFor(_ context.Context, holderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	custodian, ok := s.custodians[holderID]
	if !ok || custodian == "" {
		return "", domain.ErrNoCustodianAssigned
	}
	return custodian, nil
}

// DisplayName implements domain.DirectoryLookup. Unknown holders fall back
// to their raw id, matching how the UI renders unprovisioned users.
func (s *Store) DisplayName(_ context.Context, holderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.names[holderID]; ok {
		return name, nil
	}
	return holderID, nil
}

func (s *Store) GetBalance(_ context.Context, holderID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[holderID]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	return acc.Balance, nil
}

func (s *Store) ApplyDelta(_ context.Context, holderID string, delta decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDeltaLocked(holderID, delta, idemKey)
}

func (s *Store) applyDeltaLocked(holderID string, delta decimal.Decimal, idemKey string) (decimal.Decimal, error) {
	if _, seen := s.applied[idemKey]; seen {
		if acc, ok := s.accounts[holderID]; ok {
			return acc.Balance, nil
		}
		return decimal.Zero, nil
	}

	acc, ok := s.accounts[holderID]
	if !ok {
		if delta.Sign() < 0 {
			return decimal.Zero, domain.ErrInsufficientFunds
		}
		now := time.Now().UTC()
		acc = &domain.Account{HolderID: holderID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
		s.accounts[holderID] = acc
	}

	newBalance := acc.Balance.Add(delta)
	if newBalance.Sign() < 0 {
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	acc.Balance = newBalance
	acc.UpdatedAt = time.Now().UTC()
	s.applied[idemKey] = struct{}{}
	return newBalance, nil
}

func (s *Store) CreateAssignment(_ context.Context, a *domain.Assignment) error {
	if a.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *a
	s.assignments = append(s.assignments, &stored)
	return nil
}

func (s *Store) MarkReturned(_ context.Context, id uuid.UUID, settlementRef uuid.UUID, returnedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReturnedLocked(id, settlementRef, returnedAt)
}

func (s *Store) markReturnedLocked(id uuid.UUID, settlementRef uuid.UUID, returnedAt time.Time) error {
	for _, a := range s.assignments {
		if a.ID != id {
			continue
		}
		if a.IsReturned {
			return domain.ErrAlreadyReturned
		}
		a.IsReturned = true
		a.ReturnedAt = &returnedAt
		a.SettlementRef = &settlementRef
		return nil
	}
	return domain.ErrNotFound
}

func (s *Store) AssignmentsForCustodian(_ context.Context, custodianID string) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterAssignments(func(a *domain.Assignment) bool { return a.CustodianID == custodianID }), nil
}

func (s *Store) AssignmentsForRecipient(_ context.Context, recipientID string) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterAssignments(func(a *domain.Assignment) bool { return a.RecipientID == recipientID }), nil
}

func (s *Store) filterAssignments(keep func(*domain.Assignment) bool) []domain.Assignment {
	var out []domain.Assignment
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out
}

func (s *Store) CreateRequest(_ context.Context, r *domain.ReturnRequest) error {
	if r.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	s.requests[r.ID] = &stored
	return nil
}

func (s *Store) GetRequest(_ context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *Store) MarkRejected(_ context.Context, id uuid.UUID, deciderID string, reason *string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status != domain.StatusPending {
		return domain.ErrAlreadyDecided
	}
	r.Status = domain.StatusRejected
	r.DecidedAt = &decidedAt
	r.DecidedBy = &deciderID
	r.RejectionReason = reason
	return nil
}

func (s *Store) RequestsForCustodian(_ context.Context, custodianID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterRequests(func(r *domain.ReturnRequest) bool { return r.CustodianID == custodianID }, status), nil
}

func (s *Store) RequestsForRequester(_ context.Context, requesterID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterRequests(func(r *domain.ReturnRequest) bool { return r.RequesterID == requesterID }, status), nil
}

func (s *Store) filterRequests(keep func(*domain.ReturnRequest) bool, status *domain.RequestStatus) []domain.ReturnRequest {
	var out []domain.ReturnRequest
	for _, r := range s.requests {
		if !keep(r) {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out
}

// ExecSettlement implements domain.SettlementStore under a single lock so
// the debit, credit, status flip and assignment marking are indivisible.
func (s *Store) ExecSettlement(_ context.Context, requestID uuid.UUID, approverID string) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.Status != domain.StatusPending {
		// Only one decision per request ever succeeds, retries included.
		return nil, domain.ErrAlreadyDecided
	}
	if approverID != r.CustodianID {
		return nil, domain.ErrNotAuthorized
	}

	// Re-check funds before any mutation so a failure leaves nothing
	// half-applied.
	acc, ok := s.accounts[r.RequesterID]
	if !ok || acc.Balance.LessThan(r.Amount) {
		return nil, domain.ErrInsufficientFunds
	}

	if _, err := s.applyDeltaLocked(r.RequesterID, r.Amount.Neg(), domain.DebitKey(r.ID)); err != nil {
		return nil, err
	}
	if _, err := s.applyDeltaLocked(r.CustodianID, r.Amount, domain.CreditKey(r.ID)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r.Status = domain.StatusApproved
	r.DecidedAt = &now
	r.DecidedBy = &approverID

	result := &domain.SettlementResult{
		RequestID:      r.ID,
		DebitedHolder:  r.RequesterID,
		CreditedHolder: r.CustodianID,
		Amount:         r.Amount,
		SettledAt:      now,
	}

	if target := s.oldestCoveringAssignmentLocked(r.CustodianID, r.RequesterID, r.Amount); target != nil {
		if err := s.markReturnedLocked(target.ID, r.ID, now); err != nil {
			return nil, err
		}
		id := target.ID
		result.AssignmentID = &id
	}

	return result, nil
}

func (s *Store) oldestCoveringAssignmentLocked(custodianID, recipientID string, amount decimal.Decimal) *domain.Assignment {
	var oldest *domain.Assignment
	for _, a := range s.assignments {
		if a.CustodianID != custodianID || a.RecipientID != recipientID || a.IsReturned {
			continue
		}
		if a.Amount.LessThan(amount) {
			continue
		}
		if oldest == nil || a.AssignedAt.Before(oldest.AssignedAt) {
			oldest = a
		}
	}
	return oldest
}
