// Package handler turns one inbound essence event into a short, fail-fast
// sequence of MediaHaven calls. Every failing step returns a *StopError that
// tells the dispatcher whether to drop or requeue the message.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/mediahaven"
	"github.com/your-org/essencelink/internal/ports"
	"github.com/your-org/essencelink/pkg/retry"
	"github.com/your-org/essencelink/pkg/storage/objectstore"
	"github.com/your-org/essencelink/pkg/tracing"
)

// AnyAmount disables the result count check of a query.
const AnyAmount = -1

// Handler processes the raw body of one message.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

// Backend is the subset of the MediaHaven client the pipelines use.
type Backend interface {
	Search(ctx context.Context, q mediahaven.Query) (*mediahaven.ResultSet, error)
	CreateFragment(ctx context.Context, parentID, title string) (*mediahaven.Record, error)
	UpdateFragment(ctx context.Context, fragmentID string, sidecar []byte, reason string) (bool, error)
	DeleteFragment(ctx context.Context, fragmentID string) (bool, error)
}

// PIDSource hands out persistent identifiers.
type PIDSource interface {
	GetPID(ctx context.Context) (string, error)
}

// EssenceProbe looks up the essence object in storage.
type EssenceProbe interface {
	Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error)
}

// Deps are shared by every handler. Probe is optional.
type Deps struct {
	Backend               Backend
	PID                   PIDSource
	Publisher             ports.Publisher
	Probe                 EssenceProbe
	Logger                *zap.Logger
	GetMetadataRoutingKey string
	// Retry drives the metadata update retry on 403/404.
	Retry retry.Config
	Now   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// pipeline carries the deps through the steps of one handler.
type pipeline struct {
	Deps
	log *zap.Logger
}

func newPipeline(d Deps, name string) pipeline {
	d = d.withDefaults()
	return pipeline{Deps: d, log: d.Logger.Named(name)}
}

func step(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	return tracing.Start(ctx, "handler."+name, attrs...)
}

// backendStop converts a client error into a StopError. Only connectivity
// failures and shutdown interruptions are requeued.
func backendStop(msg string, err error, fields ...Field) *StopError {
	fields = append(fields, KV("error", err.Error()))
	if body := mediahaven.ResponseBody(err); body != "" {
		fields = append(fields, KV("error_response", body))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Requeue("Handling interrupted", fields...)
	}
	if mediahaven.IsConnectivity(err) {
		return Requeue("Unable to connect to MediaHaven", fields...)
	}
	return Stop(msg, fields...)
}

func parseStop(kind string, body []byte, err error) *StopError {
	return Stop(
		fmt.Sprintf("Unable to parse the incoming %s", kind),
		KV("error", err.Error()),
		KV("incoming_message", string(body)),
	)
}

// query searches and enforces the expected result count unless it is AnyAmount.
func (p pipeline) query(ctx context.Context, q mediahaven.Query, expected int) (_ *mediahaven.ResultSet, err error) {
	ctx, end := step(ctx, "query", attribute.String("query", q.String()), attribute.Int("expected_amount", expected))
	defer func() { end(err) }()

	p.log.Debug("querying mediahaven", zap.Strings("query_key_values", q.Pairs()), zap.Int("expected_amount", expected))
	rs, err := p.Backend.Search(ctx, q)
	if err != nil {
		return nil, backendStop(
			"Unable to retrieve fragments",
			err,
			KV("query_key_values", q.Pairs()),
		)
	}
	if expected != AnyAmount && rs.TotalNrOfResults != expected {
		return nil, Stop(
			fmt.Sprintf("Expected %d result(s) for query, got %d", expected, rs.TotalNrOfResults),
			KV("query_key_values", q.Pairs()),
			KV("expected_amount", expected),
			KV("actual_amount", rs.TotalNrOfResults),
		)
	}
	return rs, nil
}

func (p pipeline) deleteFragment(ctx context.Context, fragmentID string) (err error) {
	ctx, end := step(ctx, "delete_fragment", attribute.String("fragment_id", fragmentID))
	defer func() { end(err) }()

	p.log.Debug("deleting fragment", zap.String("fragment_id", fragmentID))
	ok, err := p.Backend.DeleteFragment(ctx, fragmentID)
	if err != nil {
		return backendStop(
			fmt.Sprintf("Unable to delete a fragment for fragment_id: %s", fragmentID),
			err,
			KV("fragment_id", fragmentID),
		)
	}
	if !ok {
		return Stop(
			fmt.Sprintf("Unable to delete the fragment for fragment id: %s", fragmentID),
			KV("fragment_id", fragmentID),
		)
	}
	return nil
}
