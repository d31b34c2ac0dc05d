package handler

import (
	"context"
	"fmt"
)

// UnknownRoutingKeyHandler rejects messages whose routing key is not bound to a handler.
type UnknownRoutingKeyHandler struct {
	RoutingKey string
}

func (h UnknownRoutingKeyHandler) Handle(_ context.Context, body []byte) error {
	return Stop(
		fmt.Sprintf("Unknown routing key: %s", h.RoutingKey),
		KV("routing_key", h.RoutingKey),
		KV("incoming_message", string(body)),
	)
}
