package handler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/your-org/essencelink/internal/mediahaven"
	"github.com/your-org/essencelink/pkg/retry"
	"github.com/your-org/essencelink/pkg/storage/objectstore"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Search(ctx context.Context, q mediahaven.Query) (*mediahaven.ResultSet, error) {
	args := m.Called(ctx, q)
	rs, _ := args.Get(0).(*mediahaven.ResultSet)
	return rs, args.Error(1)
}

func (m *mockBackend) CreateFragment(ctx context.Context, parentID, title string) (*mediahaven.Record, error) {
	args := m.Called(ctx, parentID, title)
	rec, _ := args.Get(0).(*mediahaven.Record)
	return rec, args.Error(1)
}

func (m *mockBackend) UpdateFragment(ctx context.Context, fragmentID string, sidecar []byte, reason string) (bool, error) {
	args := m.Called(ctx, fragmentID, sidecar, reason)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) DeleteFragment(ctx context.Context, fragmentID string) (bool, error) {
	args := m.Called(ctx, fragmentID)
	return args.Bool(0), args.Error(1)
}

type mockPID struct {
	mock.Mock
}

func (m *mockPID) GetPID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error {
	args := m.Called(ctx, routingKey, body, correlationID)
	return args.Error(0)
}

type mockProbe struct {
	mock.Mock
}

func (m *mockProbe) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	args := m.Called(ctx, bucket, key)
	return args.Get(0).(objectstore.ObjectInfo), args.Error(1)
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

type fixture struct {
	backend   *mockBackend
	pid       *mockPID
	publisher *mockPublisher
	sleeps    *sleepRecorder
	deps      Deps
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		backend:   &mockBackend{},
		pid:       &mockPID{},
		publisher: &mockPublisher{},
		sleeps:    &sleepRecorder{},
	}
	r := retry.Default()
	r.Sleep = f.sleeps.sleep
	f.deps = Deps{
		Backend:               f.backend,
		PID:                   f.pid,
		Publisher:             f.publisher,
		GetMetadataRoutingKey: "get_metadata",
		Retry:                 r,
		Now:                   func() time.Time { return fixedNow },
	}
	return f
}
