package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/events"
	"github.com/your-org/essencelink/internal/mediahaven"
)

// DeleteHandler removes every fragment carrying the event's media id. The
// unlinked and deleted events share it and differ only in parser and wording.
type DeleteHandler struct {
	pipeline
	kind  string
	parse func([]byte) (events.Event, error)
}

// NewEssenceUnlinkedHandler handles essenceUnlinkedEvent messages.
func NewEssenceUnlinkedHandler(d Deps) *DeleteHandler {
	return &DeleteHandler{
		pipeline: newPipeline(d, "essence_unlinked"),
		kind:     "essence unlinked event",
		parse: func(b []byte) (events.Event, error) {
			ev, err := events.ParseEssenceUnlinked(b)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
	}
}

// NewObjectDeletedHandler handles objectDeletedEvent messages.
func NewObjectDeletedHandler(d Deps) *DeleteHandler {
	return &DeleteHandler{
		pipeline: newPipeline(d, "object_deleted"),
		kind:     "object deleted event",
		parse: func(b []byte) (events.Event, error) {
			ev, err := events.ParseObjectDeleted(b)
			if err != nil {
				return nil, err
			}
			return ev, nil
		},
	}
}

// Handle deletes the fragments for the media id in the event. Nothing is
// deleted when the matches exceed one result page. A failure on any fragment
// stops the loop; fragments deleted before it stay deleted.
func (h *DeleteHandler) Handle(ctx context.Context, body []byte) error {
	h.log.Info("Start handling "+h.kind, zap.ByteString("incoming_message", body))

	event, err := h.parse(body)
	if err != nil {
		return parseStop(h.kind, body, err)
	}
	mediaID := event.MediaID()

	rs, err := h.query(ctx, mediahaven.Where("dc_identifier_localid", mediaID), AnyAmount)
	if err != nil {
		return err
	}
	if rs.TotalNrOfResults == 0 || len(rs.MediaDataList) == 0 {
		return Stop(
			fmt.Sprintf("No fragments found for media id: %s", mediaID),
			KV("media_id", mediaID),
			KV("total_results", rs.TotalNrOfResults),
		)
	}
	// Every match must fit in one page; a partial delete is never acked.
	if rs.TotalNrOfResults > len(rs.MediaDataList) {
		return Stop(
			fmt.Sprintf("More fragments found for media id: %s than fit in one result page", mediaID),
			KV("media_id", mediaID),
			KV("total_results", rs.TotalNrOfResults),
			KV("page_results", len(rs.MediaDataList)),
		)
	}

	deleted := make([]string, 0, len(rs.MediaDataList))
	for _, rec := range rs.MediaDataList {
		fragmentID := rec.Internal.FragmentID
		if fragmentID == "" {
			return Stop("FragmentId not found in the MediaHaven object",
				KV("media_id", mediaID),
				KV("deleted_fragment_ids", deleted),
			)
		}
		if err := h.deleteFragment(ctx, fragmentID); err != nil {
			if se, ok := AsStop(err); ok {
				se.Fields = append(se.Fields, KV("media_id", mediaID), KV("deleted_fragment_ids", deleted))
			}
			return err
		}
		deleted = append(deleted, fragmentID)
	}

	h.log.Info(fmt.Sprintf("Successfully deleted %d fragment(s) for media id: %s", len(deleted), mediaID),
		zap.String("media_id", mediaID),
		zap.Strings("fragment_ids", deleted),
	)
	return nil
}
