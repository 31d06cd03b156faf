package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCheckViolation       = "23514"
)

// Store implements the order and inventory stores on Postgres. Reservations
// lock product rows with SELECT ... FOR UPDATE inside RunInTx.
type Store struct{ DB DB }

func NewStore(db DB) *Store { return &Store{DB: db} }

func (s *Store) Inventory() orders.InventoryStore { return &productRepo{q: s.DB} }
func (s *Store) Orders() orders.OrderStore        { return &orderRepo{q: s.DB, begin: s.RunInTx} }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Inventory() orders.InventoryStore { return &productRepo{q: t.tx, forUpdate: true} }
func (t pgTx) Orders() orders.OrderStore        { return &orderRepo{q: t.tx, forUpdate: true} }

// classify maps lock conflicts to ErrConcurrencyConflict so the caller can retry.
func classify(err error) error {
	if errors.Is(err, orders.ErrConcurrencyConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", orders.ErrConcurrencyConflict, err)
	case codeCheckViolation:
		if pgErr.ConstraintName == "products_stock_quantity_check" {
			return fmt.Errorf("%w: %w", orders.ErrNegativeStock, err)
		}
	}
	return err
}
