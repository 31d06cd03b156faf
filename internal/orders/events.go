package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderReserved = "OrderReserved"
	EventOrderRejected = "OrderRejected"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-fulfillment"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderReservedPayload struct {
	OrderID int64     `json:"order_id"`
	Status  Status    `json:"status"`
	Items   []ItemQty `json:"items"`
}

type StockRejectedDetail struct {
	ProductID int64 `json:"product_id"`
	Required  int   `json:"required"`
	Available int   `json:"available"`
}

type OrderRejectedPayload struct {
	OrderID int64                 `json:"order_id"`
	Status  Status                `json:"status"`
	Reason  string                `json:"reason"` // e.g., INSUFFICIENT_STOCK
	Details []StockRejectedDetail `json:"details,omitempty"`
}
