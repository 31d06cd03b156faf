package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope splits a message value into its envelope and typed payload.
func DecodeEnvelope[T any](b []byte) (orders.Envelope, T, error) {
	var (
		env     orders.Envelope
		payload T
	)
	if err := json.Unmarshal(b, &env); err != nil {
		return env, payload, fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return env, payload, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return env, payload, nil
}
