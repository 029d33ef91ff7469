package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
)

// QueryService exposes the side-effect-free read operations consumed by
// presentation layers.
type QueryService struct {
	accounts  domain.AccountStore
	ledger    domain.AssignmentLedger
	requests  domain.RequestStore
	directory domain.DirectoryLookup
}

func NewQueryService(
	accounts domain.AccountStore,
	ledger domain.AssignmentLedger,
	requests domain.RequestStore,
	directory domain.DirectoryLookup,
) *QueryService {
	return &QueryService{accounts: accounts, ledger: ledger, requests: requests, directory: directory}
}

func (s *QueryService) GetAccountBalance(ctx context.Context, holderID string) (decimal.Decimal, error) {
	return s.accounts.GetBalance(ctx, holderID)
}

func (s *QueryService) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ReturnRequest, error) {
	return s.requests.GetRequest(ctx, id)
}

func (s *QueryService) AssignmentsForCustodian(ctx context.Context, custodianID string) ([]domain.Assignment, error) {
	return s.ledger.AssignmentsForCustodian(ctx, custodianID)
}

func (s *QueryService) AssignmentsForRecipient(ctx context.Context, recipientID string) ([]domain.Assignment, error) {
	return s.ledger.AssignmentsForRecipient(ctx, recipientID)
}

func (s *QueryService) RequestsForCustodian(ctx context.Context, custodianID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	return s.requests.RequestsForCustodian(ctx, custodianID, status)
}

func (s *QueryService) RequestsForRequester(ctx context.Context, requesterID string, status *domain.RequestStatus) ([]domain.ReturnRequest, error) {
	return s.requests.RequestsForRequester(ctx, requesterID, status)
}

// HolderName resolves a display name for presentation. Never used for
// authorization.
func (s *QueryService) HolderName(ctx context.Context, holderID string) (string, error) {
	return s.directory.DisplayName(ctx, holderID)
}
