package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type productRepo struct {
	q         querier
	forUpdate bool
}

func (r *productRepo) FindByID(ctx context.Context, id int64) (orders.Product, bool, error) {
	sql := `SELECT id, name, price::text, stock_quantity FROM products WHERE id=$1`
	if r.forUpdate {
		sql += ` FOR UPDATE`
	}
	var (
		p     orders.Product
		price string
	)
	err := r.q.QueryRow(ctx, sql, id).Scan(&p.ID, &p.Name, &price, &p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, false, nil
	}
	if err != nil {
		return orders.Product{}, false, classify(fmt.Errorf("find product %d: %w", id, err))
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Product{}, false, fmt.Errorf("product %d price %q: %w", id, price, err)
	}
	return p, true, nil
}

func (r *productRepo) Save(ctx context.Context, p orders.Product) (orders.Product, error) {
	if err := p.Validate(); err != nil {
		return orders.Product{}, err
	}
	if p.ID == 0 {
		err := r.q.QueryRow(ctx, `
			INSERT INTO products(name, price, stock_quantity)
			VALUES ($1, $2::numeric, $3)
			RETURNING id`, p.Name, p.Price.String(), p.StockQuantity).Scan(&p.ID)
		if err != nil {
			return orders.Product{}, classify(fmt.Errorf("insert product: %w", err))
		}
		return p, nil
	}

	ct, err := r.q.Exec(ctx, `
		UPDATE products SET name=$2, price=$3::numeric, stock_quantity=$4, updated_at=now()
		WHERE id=$1`, p.ID, p.Name, p.Price.String(), p.StockQuantity)
	if err != nil {
		return orders.Product{}, classify(fmt.Errorf("update product %d: %w", p.ID, err))
	}
	if ct.RowsAffected() != 1 {
		return orders.Product{}, fmt.Errorf("update product %d: %w", p.ID, orders.ErrProductNotFound)
	}
	return p, nil
}
