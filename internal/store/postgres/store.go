// Package postgres implements the storage ports on PostgreSQL via pgx.
// All mutation paths run inside explicit transactions with row-level
// locking; settlement locks account rows in deterministic order to avoid
// deadlocks between concurrent approvals.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Probe verifies the expected schema is provisioned. The process refuses
// to start against a partially provisioned database instead of degrading
// at first use.
func (s *Store) Probe(ctx context.Context) error {
	tables := []string{"accounts", "assignments", "return_requests", "applied_deltas", "holders"}
	for _, table := range tables {
		var regclass *string
		err := s.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", table).Scan(&regclass)
		if err != nil {
			return fmt.Errorf("schema probe failed: %w", err)
		}
		if regclass == nil {
			return fmt.Errorf("schema probe failed: table %q is missing", table)
		}
	}
	return nil
}

func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
