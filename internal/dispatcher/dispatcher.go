// Package dispatcher routes inbound messages to handlers by routing key and
// settles each message according to the handler's outcome.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/handler"
	"github.com/your-org/essencelink/internal/metrics"
	"github.com/your-org/essencelink/internal/ports"
	"github.com/your-org/essencelink/pkg/retry"
	"github.com/your-org/essencelink/pkg/tracing"
)

// DefaultRequeueDelay throttles redelivery of requeued messages.
const DefaultRequeueDelay = 10 * time.Second

// Outcome is how a message was settled.
type Outcome string

const (
	Ack         Outcome = "ack"
	NackDrop    Outcome = "nack_drop"
	NackRequeue Outcome = "nack_requeue"
)

const unknownRoute = "unknown"

// Route binds a routing key to a handler. Name labels logs and metrics.
type Route struct {
	Key     string
	Name    string
	Handler handler.Handler
}

type Params struct {
	Routes       []Route
	RequeueDelay time.Duration
	// Sleep defaults to a context-aware real sleep.
	Sleep  retry.SleepFunc
	Logger *zap.Logger
}

// Dispatcher handles one message at a time and never retries a handler.
type Dispatcher struct {
	routes       []Route
	requeueDelay time.Duration
	sleep        retry.SleepFunc
	log          *zap.Logger
}

// New constructs a Dispatcher.
func New(p Params) *Dispatcher {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Sleep == nil {
		p.Sleep = retry.Sleep
	}
	if p.RequeueDelay <= 0 {
		p.RequeueDelay = DefaultRequeueDelay
	}
	return &Dispatcher{
		routes:       p.Routes,
		requeueDelay: p.RequeueDelay,
		sleep:        p.Sleep,
		log:          p.Logger,
	}
}

// Route selects the handler for a routing key: an exact match wins over a
// suffix match, and anything else goes to the unknown routing key handler.
func (d *Dispatcher) Route(routingKey string) Route {
	for _, r := range d.routes {
		if r.Key == routingKey {
			return r
		}
	}
	for _, r := range d.routes {
		if r.Key != "" && strings.HasSuffix(routingKey, r.Key) {
			return r
		}
	}
	return Route{
		Key:     routingKey,
		Name:    unknownRoute,
		Handler: handler.UnknownRoutingKeyHandler{RoutingKey: routingKey},
	}
}

// Handle adapts Dispatch to ports.MessageHandler.
func (d *Dispatcher) Handle(ctx context.Context, msg ports.Message) {
	d.Dispatch(ctx, msg)
}

// Dispatch runs the matching handler and acks or nacks msg.
func (d *Dispatcher) Dispatch(ctx context.Context, msg ports.Message) Outcome {
	start := time.Now()
	route := d.Route(msg.RoutingKey)

	ctx, end := tracing.Start(ctx, "dispatch",
		attribute.String("routing_key", msg.RoutingKey),
		attribute.String("handler", route.Name),
	)
	d.log.Info(fmt.Sprintf("Incoming message with routing key: %s", msg.RoutingKey),
		zap.ByteString("incoming_message", msg.Body),
	)

	err := route.Handler.Handle(ctx, msg.Body)
	outcome := d.settle(ctx, msg, err)
	end(err)

	metrics.RecordMessage(route.Name, string(outcome), time.Since(start))
	return outcome
}

func (d *Dispatcher) settle(ctx context.Context, msg ports.Message, err error) Outcome {
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			d.log.Error("ack failed", zap.String("routing_key", msg.RoutingKey), zap.Error(ackErr))
		}
		return Ack
	}

	stop, ok := handler.AsStop(err)
	if !ok {
		stop = handler.Stop("Unexpected error while handling message",
			handler.KV("error", err.Error()),
			handler.KV("incoming_message", string(msg.Body)),
		)
	}

	fields := make([]zap.Field, 0, len(stop.Fields)+1)
	for _, f := range stop.Fields {
		fields = append(fields, zap.Any(f.Key, f.Value))
	}
	fields = append(fields, zap.Bool("requeue", stop.Requeue))
	d.log.Error(stop.Message, fields...)

	outcome := NackDrop
	if stop.Requeue {
		outcome = NackRequeue
		// An interrupted delay still requeues; shutdown must not drop the message.
		if sleepErr := d.sleep(ctx, d.requeueDelay); sleepErr != nil {
			d.log.Debug("requeue delay interrupted", zap.Error(sleepErr))
		}
	}
	if nackErr := msg.Nack(stop.Requeue); nackErr != nil {
		d.log.Error("nack failed",
			zap.String("routing_key", msg.RoutingKey),
			zap.Bool("requeue", stop.Requeue),
			zap.Error(nackErr),
		)
	}
	return outcome
}
