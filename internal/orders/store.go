package orders

import "context"

type InventoryStore interface {
	// FindByID returns ok=false when the product does not exist. Inside a
	// transaction the row stays locked until the transaction ends.
	FindByID(ctx context.Context, id int64) (p Product, ok bool, err error)
	Save(ctx context.Context, p Product) (Product, error)
}

type OrderStore interface {
	// FindByStatus returns orders with their items, ascending by id.
	FindByStatus(ctx context.Context, status Status) ([]Order, error)
	// FindByID returns ok=false when the order does not exist. Inside a
	// transaction the order row stays locked until the transaction ends.
	FindByID(ctx context.Context, id int64) (o Order, ok bool, err error)
	// Save inserts the order with its items when ID is zero, otherwise it
	// persists the status. Items are immutable once stored.
	Save(ctx context.Context, o Order) (Order, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// Tx exposes stores bound to one transaction.
type Tx interface {
	Inventory() InventoryStore
	Orders() OrderStore
}

// Transactor runs fn in a single transaction: committed when fn returns nil,
// rolled back otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
