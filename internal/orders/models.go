package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// Validate reports invariant violations that no store may persist.
func (p Product) Validate() error {
	if p.StockQuantity < 0 {
		return ErrNegativeStock
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}

type Order struct {
	ID        int64
	CreatedAt time.Time
	Status    Status // lihat status.go
	Items     []OrderItem
}

// OrderItem points at its product by id only; the product may be gone by the
// time the order is reserved.
type OrderItem struct {
	ID        int64
	ProductID int64
	Quantity  int
}

// ProductDemand sums quantities per product, so duplicate lines for the same
// product are validated against their combined requirement.
func (o Order) ProductDemand() map[int64]int {
	out := make(map[int64]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}
