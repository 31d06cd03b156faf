package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type MessagePublisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// OutcomePublisher announces reservation outcomes: reserved orders on one
// topic, rejected orders on another. Skipped orders are not announced.
type OutcomePublisher struct {
	reserved MessagePublisher
	rejected MessagePublisher
	producer string
	now      func() time.Time
}

func NewOutcomePublisher(reserved, rejected MessagePublisher, serviceName string) *OutcomePublisher {
	return &OutcomePublisher{
		reserved: reserved,
		rejected: rejected,
		producer: serviceName,
		now:      time.Now,
	}
}

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, out fulfillment.Outcome) error {
	if out.Skipped {
		return nil
	}

	var (
		eventType string
		payload   any
		target    MessagePublisher
	)
	if out.Reserved {
		eventType, target = orders.EventOrderReserved, p.reserved
		payload = orders.OrderReservedPayload{OrderID: out.OrderID, Status: out.Status, Items: out.Items}
	} else {
		eventType, target = orders.EventOrderRejected, p.rejected
		rp := orders.OrderRejectedPayload{OrderID: out.OrderID, Status: out.Status, Reason: string(out.Reason)}
		if out.Detail != nil {
			rp.Details = []orders.StockRejectedDetail{*out.Detail}
		}
		payload = rp
	}

	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    p.now().UTC(),
		Producer:      p.producer,
		CorrelationID: strconv.FormatInt(out.OrderID, 10),
		Payload:       MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}

	headers := []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
	carrier := headerCarrier{headers: &headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return target.Publish(ctx, orders.PartitionKey(out.OrderID), MustMarshal(ev), headers...)
}

// headerCarrier lets the otel propagator write trace context into message headers.
type headerCarrier struct {
	headers *[]kafkago.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
