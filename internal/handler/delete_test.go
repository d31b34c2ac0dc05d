package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/your-org/essencelink/internal/mediahaven"
)

const unlinkedEvent = `<?xml version="1.0" encoding="UTF-8"?>
<essenceUnlinkedEvent xmlns="http://www.vrt.be/mig/viaa/api">
  <timestamp>2019-09-24T17:21:28.787+02:00</timestamp>
  <mediaId>media id</mediaId>
</essenceUnlinkedEvent>`

const deletedEvent = `<?xml version="1.0" encoding="UTF-8"?>
<objectDeletedEvent xmlns="http://www.vrt.be/mig/viaa/api">
  <timestamp>2019-09-24T17:21:28.787+02:00</timestamp>
  <mediaId>media id</mediaId>
</objectDeletedEvent>`

func fragments(ids ...string) *mediahaven.ResultSet {
	rs := &mediahaven.ResultSet{TotalNrOfResults: len(ids)}
	for _, id := range ids {
		rs.MediaDataList = append(rs.MediaDataList, mediahaven.Record{
			Internal: mediahaven.Internal{FragmentID: id, IsFragment: true},
		})
	}
	return rs
}

func deleteHandlers() map[string]struct {
	build func(Deps) *DeleteHandler
	body  string
} {
	return map[string]struct {
		build func(Deps) *DeleteHandler
		body  string
	}{
		"unlinked": {build: NewEssenceUnlinkedHandler, body: unlinkedEvent},
		"deleted":  {build: NewObjectDeletedHandler, body: deletedEvent},
	}
}

func TestDelete_AllFragments(t *testing.T) {
	for name, h := range deleteHandlers() {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.backend.On("Search", mock.Anything, localIDQuery).Return(fragments("fragment id 1", "fragment id 2"), nil).Once()
			f.backend.On("DeleteFragment", mock.Anything, "fragment id 1").Return(true, nil).Once()
			f.backend.On("DeleteFragment", mock.Anything, "fragment id 2").Return(true, nil).Once()

			require.NoError(t, h.build(f.deps).Handle(context.Background(), []byte(h.body)))
			f.backend.AssertExpectations(t)
		})
	}
}

func TestDelete_NoFragments(t *testing.T) {
	for name, h := range deleteHandlers() {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.backend.On("Search", mock.Anything, localIDQuery).Return(&mediahaven.ResultSet{}, nil).Once()

			se := requireStop(t, h.build(f.deps).Handle(context.Background(), []byte(h.body)), false)
			assert.Equal(t, "No fragments found for media id: media id", se.Message)
			f.backend.AssertNotCalled(t, "DeleteFragment", mock.Anything, mock.Anything)
		})
	}
}

func TestDelete_WrongEventKind(t *testing.T) {
	f := newFixture()

	se := requireStop(t, NewObjectDeletedHandler(f.deps).Handle(context.Background(), []byte(unlinkedEvent)), false)
	assert.Equal(t, "Unable to parse the incoming object deleted event", se.Message)
	f.backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestDelete_SearchUnreachableRequeues(t *testing.T) {
	f := newFixture()
	f.backend.On("Search", mock.Anything, localIDQuery).
		Return(nil, &mediahaven.ConnectivityError{Op: "search", Err: errors.New("refused")}).Once()

	requireStop(t, NewEssenceUnlinkedHandler(f.deps).Handle(context.Background(), []byte(unlinkedEvent)), true)
}

func TestDelete_StopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name    string
		ok      bool
		err     error
		requeue bool
	}{
		{name: "unreachable", err: &mediahaven.ConnectivityError{Op: "delete_fragment", Err: errors.New("timeout")}, requeue: true},
		{name: "backend error", err: &mediahaven.BackendError{Op: "delete_fragment", StatusCode: 500, Body: "oops"}},
		{name: "not deleted", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.backend.On("Search", mock.Anything, localIDQuery).Return(fragments("a", "b", "c"), nil).Once()
			f.backend.On("DeleteFragment", mock.Anything, "a").Return(true, nil).Once()
			f.backend.On("DeleteFragment", mock.Anything, "b").Return(tt.ok, tt.err).Once()

			se := requireStop(t, NewObjectDeletedHandler(f.deps).Handle(context.Background(), []byte(deletedEvent)), tt.requeue)

			deleted, ok := se.Field("deleted_fragment_ids")
			require.True(t, ok)
			assert.Equal(t, []string{"a"}, deleted)
			fragmentID, _ := se.Field("fragment_id")
			assert.Equal(t, "b", fragmentID)
			f.backend.AssertNotCalled(t, "DeleteFragment", mock.Anything, "c")
		})
	}
}

func TestDelete_MissingFragmentID(t *testing.T) {
	f := newFixture()
	f.backend.On("Search", mock.Anything, localIDQuery).Return(fragments("a", ""), nil).Once()
	f.backend.On("DeleteFragment", mock.Anything, "a").Return(true, nil).Once()

	se := requireStop(t, NewEssenceUnlinkedHandler(f.deps).Handle(context.Background(), []byte(unlinkedEvent)), false)
	deleted, _ := se.Field("deleted_fragment_ids")
	assert.Equal(t, []string{"a"}, deleted)
}

func TestDelete_InterruptedRequeues(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.backend.On("Search", mock.Anything, localIDQuery).Return(nil, context.Canceled).Once()

	se := requireStop(t, NewEssenceUnlinkedHandler(f.deps).Handle(ctx, []byte(unlinkedEvent)), true)
	assert.Equal(t, "Handling interrupted", se.Message)
}

func TestDelete_MoreMatchesThanOnePage(t *testing.T) {
	f := newFixture()
	rs := fragments("a", "b")
	rs.TotalNrOfResults = 150
	f.backend.On("Search", mock.Anything, localIDQuery).Return(rs, nil).Once()

	se := requireStop(t, NewObjectDeletedHandler(f.deps).Handle(context.Background(), []byte(deletedEvent)), false)

	total, _ := se.Field("total_results")
	page, _ := se.Field("page_results")
	assert.Equal(t, 150, total)
	assert.Equal(t, 2, page)
	f.backend.AssertNotCalled(t, "DeleteFragment", mock.Anything, mock.Anything)
}
