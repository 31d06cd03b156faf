package fulfillment

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"

type metrics struct {
	processed    metric.Int64Counter
	cancelled    metric.Int64Counter
	failed       metric.Int64Counter
	skipped      metric.Int64Counter
	passes       metric.Int64Counter
	ticksSkipped metric.Int64Counter
	conflicts    metric.Int64Counter
	passDuration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	return &metrics{
		processed:    counter(meter, "fulfillment.orders.processed", "Orders moved to PROCESSING"),
		cancelled:    counter(meter, "fulfillment.orders.cancelled", "Orders cancelled or failed"),
		failed:       counter(meter, "fulfillment.orders.failed", "Orders whose reservation hit a store failure"),
		skipped:      counter(meter, "fulfillment.orders.skipped", "Orders no longer pending under lock"),
		passes:       counter(meter, "fulfillment.passes", "Completed fulfillment passes"),
		ticksSkipped: counter(meter, "fulfillment.ticks.skipped", "Ticks dropped because a pass was running"),
		conflicts:    counter(meter, "fulfillment.reservation.conflicts", "Reservation attempts retried after a write conflict"),
		passDuration: histogram(meter, "fulfillment.pass.duration", "Fulfillment pass duration"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func histogram(m metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := m.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		return noop.Float64Histogram{}
	}
	return h
}
