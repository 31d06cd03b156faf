package fulfillment

import (
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type RejectReason string

const (
	ReasonProductNotFound   RejectReason = "PRODUCT_NOT_FOUND"
	ReasonInsufficientStock RejectReason = "INSUFFICIENT_STOCK"
	ReasonInvalidQuantity   RejectReason = "INVALID_QUANTITY"
)

// Outcome is the result of one reservation attempt for one order.
type Outcome struct {
	OrderID int64
	// Status is the status written by the reservation, or the status found
	// when the order was skipped.
	Status   orders.Status
	Reserved bool
	// Skipped is set when the order was gone or no longer PENDING under lock.
	Skipped bool
	Reason  RejectReason
	Detail  *orders.StockRejectedDetail
	// ProductIDs lists products whose stock changed, ascending. Empty on rejection.
	ProductIDs []int64
	Items      []orders.ItemQty
	Attempts   int
}

// Err maps a rejection to its sentinel error, nil otherwise.
func (o Outcome) Err() error {
	switch o.Reason {
	case ReasonProductNotFound:
		return orders.ErrProductNotFound
	case ReasonInsufficientStock:
		return orders.ErrInsufficientStock
	case ReasonInvalidQuantity:
		return orders.ErrInvalidQuantity
	}
	return nil
}

// PassSummary aggregates one fulfillment pass. Cancelled includes Failed.
type PassSummary struct {
	Processed int           `json:"processedCount"`
	Cancelled int           `json:"cancelledCount"`
	Failed    int           `json:"failedCount"`
	Skipped   int           `json:"skippedCount"`
	Duration  time.Duration `json:"durationNanos"`
}
