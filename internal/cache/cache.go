// Package cache defines how cached order and product views are dropped after
// their source rows change.
package cache

import "context"

type Scope string

const (
	ScopeOrders         Scope = "orders"
	ScopeProducts       Scope = "products"
	ScopeOrderByID      Scope = "order-by-id"
	ScopeOrdersByStatus Scope = "orders-by-status"
)

// Invalidator drops cached views. Keys narrow the scope (order ids, product
// ids, status names); no keys means everything in the scope.
type Invalidator interface {
	Invalidate(ctx context.Context, scope Scope, keys ...string) error
}

type Nop struct{}

func (Nop) Invalidate(context.Context, Scope, ...string) error { return nil }
