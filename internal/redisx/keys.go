package redisx

import "time"

const (
	// Product catalogue: products:all -> list, product:{id} -> single product
	KeyProductsAll = "products:all"
	KeyProduct     = "product:%s"

	// Orders: orders:all, order:{id}
	KeyOrdersAll = "orders:all"
	KeyOrder     = "order:%s"

	// Orders per status: orders_by_status:{status}; stats live under the same prefix
	KeyOrdersByStatus = "orders_by_status:%s"
	KeyOrderStats     = "orders_by_status:_stats"

	patternOrder          = "order:*"
	patternProduct        = "product:*"
	patternOrdersByStatus = "orders_by_status:*"
)

var (
	TTLProducts       = 15 * time.Minute
	TTLOrders         = 5 * time.Minute
	TTLOrdersByStatus = 3 * time.Minute
)
