package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type orderRepo struct {
	q         querier
	forUpdate bool
	// begin is set outside a transaction so multi-statement inserts stay atomic.
	begin func(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error
}

func (r *orderRepo) FindByStatus(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	rows, err := r.q.Query(ctx, `SELECT id, status, created_at FROM orders WHERE status=$1 ORDER BY id`, string(status))
	if err != nil {
		return nil, classify(fmt.Errorf("find orders by status %s: %w", status, err))
	}
	out, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) FindByID(ctx context.Context, id int64) (orders.Order, bool, error) {
	sql := `SELECT id, status, created_at FROM orders WHERE id=$1`
	if r.forUpdate {
		sql += ` FOR UPDATE`
	}
	var (
		o      orders.Order
		status string
	)
	err := r.q.QueryRow(ctx, sql, id).Scan(&o.ID, &status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, classify(fmt.Errorf("find order %d: %w", id, err))
	}
	o.Status = orders.Status(status)

	list := []orders.Order{o}
	if err := r.loadItems(ctx, list); err != nil {
		return orders.Order{}, false, err
	}
	return list[0], true, nil
}

func (r *orderRepo) Save(ctx context.Context, o orders.Order) (orders.Order, error) {
	if o.ID != 0 {
		ct, err := r.q.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, o.ID, string(o.Status))
		if err != nil {
			return orders.Order{}, classify(fmt.Errorf("update order %d: %w", o.ID, err))
		}
		if ct.RowsAffected() != 1 {
			return orders.Order{}, fmt.Errorf("update order %d: %w", o.ID, orders.ErrOrderNotFound)
		}
		return o, nil
	}

	if r.begin != nil {
		var saved orders.Order
		err := r.begin(ctx, func(ctx context.Context, tx orders.Tx) error {
			var err error
			saved, err = tx.Orders().Save(ctx, o)
			return err
		})
		return saved, err
	}
	return r.insert(ctx, o)
}

func (r *orderRepo) insert(ctx context.Context, o orders.Order) (orders.Order, error) {
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO orders(status, created_at) VALUES ($1, $2)
		RETURNING id`, string(o.Status), o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return orders.Order{}, classify(fmt.Errorf("insert order: %w", err))
	}

	items := make([]orders.OrderItem, len(o.Items))
	copy(items, o.Items)
	for i, it := range items {
		err := r.q.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity)
			VALUES ($1, $2, $3)
			RETURNING id`, o.ID, it.ProductID, it.Quantity).Scan(&items[i].ID)
		if err != nil {
			return orders.Order{}, classify(fmt.Errorf("insert item for order %d: %w", o.ID, err))
		}
	}
	o.Items = items
	return o, nil
}

func (r *orderRepo) CountByStatus(ctx context.Context) (map[orders.Status]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, classify(fmt.Errorf("count orders: %w", err))
	}
	defer rows.Close()

	out := map[orders.Status]int64{}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[orders.Status(status)] = n
	}
	return out, rows.Err()
}

func (r *orderRepo) loadItems(ctx context.Context, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(list))
	index := make(map[int64]int, len(list))
	for i, o := range list {
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, product_id, quantity FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, ids)
	if err != nil {
		return classify(fmt.Errorf("load order items: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it      orders.OrderItem
			orderID int64
		)
		if err := rows.Scan(&it.ID, &orderID, &it.ProductID, &it.Quantity); err != nil {
			return err
		}
		if i, ok := index[orderID]; ok {
			list[i].Items = append(list[i].Items, it)
		}
	}
	return rows.Err()
}

func scanOrders(rows pgx.Rows) ([]orders.Order, error) {
	defer rows.Close()
	var out []orders.Order
	for rows.Next() {
		var (
			o      orders.Order
			status string
		)
		if err := rows.Scan(&o.ID, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = orders.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
