package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pranavch/cashdesk/internal/domain"
)

// CustodianFor implements domain.CustodianResolver against the holders
// mapping table. The mapping itself is maintained by the org-structure
// system; this core only reads the resolved id.
func (s *Store) CustodianFor(ctx context.Context, holderID string) (string, error) {
	var custodianID *string
	err := s.pool.QueryRow(ctx, "SELECT custodian_id FROM holders WHERE holder_id = $1", holderID).Scan(&custodianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNoCustodianAssigned
		}
		return "", fmt.Errorf("custodian lookup failed: %w", err)
	}
	if custodianID == nil || *custodianID == "" {
		return "", domain.ErrNoCustodianAssigned
	}
	return *custodianID, nil
}

// DisplayName implements domain.DirectoryLookup. Unknown holders fall back
// to their raw id.
func (s *Store) DisplayName(ctx context.Context, holderID string) (string, error) {
	var name *string
	err := s.pool.QueryRow(ctx, "SELECT display_name FROM holders WHERE holder_id = $1", holderID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return holderID, nil
		}
		return "", fmt.Errorf("directory lookup failed: %w", err)
	}
	if name == nil || *name == "" {
		return holderID, nil
	}
	return *name, nil
}
