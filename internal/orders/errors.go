package orders

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("line item quantity must be positive")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNegativeStock     = errors.New("stock quantity must not be negative")
	ErrNegativePrice     = errors.New("price must not be negative")

	// ErrConcurrencyConflict marks a write conflict the store detected; the
	// whole reservation may be retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrStoreFailure marks a persistence failure the order could not recover from.
	ErrStoreFailure = errors.New("store failure")
)
