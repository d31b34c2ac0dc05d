package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/events"
	"github.com/your-org/essencelink/internal/mediahaven"
	"github.com/your-org/essencelink/internal/metrics"
	"github.com/your-org/essencelink/pkg/retry"
)

// SkipBucket holds essences that must never be linked to a fragment.
const SkipBucket = "original-video"

// LinkedHandler creates a fragment carrying the media id and a fresh PID for
// every linked essence, then requests its metadata.
type LinkedHandler struct {
	pipeline
}

// NewLinkedHandler constructs a LinkedHandler.
func NewLinkedHandler(d Deps) *LinkedHandler {
	return &LinkedHandler{pipeline: newPipeline(d, "essence_linked")}
}

// Handle runs the link pipeline for one essenceLinkedEvent body.
func (h *LinkedHandler) Handle(ctx context.Context, body []byte) error {
	h.log.Info("Start handling essence linked event", zap.ByteString("essence_linked_event", body))

	event, err := events.ParseEssenceLinked(body)
	if err != nil {
		return parseStop("essence linked event", body, err)
	}
	mediaID := event.MediaID()

	if event.S3Bucket == SkipBucket {
		h.log.Info(fmt.Sprintf("Dropping essence linked event: s3 bucket is %s", SkipBucket),
			zap.String("media_id", mediaID),
			zap.String("s3_bucket", event.S3Bucket),
		)
		return nil
	}

	h.probe(ctx, event)

	records, err := h.query(ctx, mediahaven.Where("s3_object_key", event.File).And("IsFragment", "0"), 1)
	if err != nil {
		return err
	}
	// A fragment carrying this media id means the essence was linked before.
	if _, err := h.query(ctx, mediahaven.Where("dc_identifier_localid", mediaID), 0); err != nil {
		return err
	}

	if len(records.MediaDataList) == 0 {
		return Stop("MediaHaven reported a result but returned no record", KV("s3_object_key", event.File))
	}
	record := records.MediaDataList[0]
	umid := record.Internal.MediaObjectID
	if umid == "" {
		return Stop("MediaObjectId not found in the MediaHaven object",
			KV("s3_object_key", event.File),
			KV("media_id", mediaID),
		)
	}
	ieType := record.Administrative.Type

	pid, err := h.getPID(ctx)
	if err != nil {
		return err
	}

	fragmentID, err := h.createFragment(ctx, umid, record.Descriptive.Title)
	if err != nil {
		return err
	}

	meta := mediahaven.FragmentMetadata{MediaID: mediaID, PID: pid, IEType: ieType}
	if err := h.addMetadata(ctx, fragmentID, meta); err != nil {
		return err
	}

	if err := h.publishGetMetadata(ctx, mediaID); err != nil {
		return err
	}
	h.log.Info(fmt.Sprintf("getMetadataRequest sent for fragment id: %s", fragmentID),
		zap.String("fragment_id", fragmentID),
		zap.String("media_id", mediaID),
		zap.String("pid", pid),
	)
	return nil
}

// probe logs what object storage knows about the essence. It never fails the pipeline.
func (h *LinkedHandler) probe(ctx context.Context, event *events.EssenceLinkedEvent) {
	if h.Probe == nil || event.S3Bucket == "" {
		return
	}
	info, err := h.Probe.Stat(ctx, event.S3Bucket, event.File)
	if err != nil {
		h.log.Warn("essence not found in object storage",
			zap.String("s3_bucket", event.S3Bucket),
			zap.String("file", event.File),
			zap.Error(err),
		)
		return
	}
	h.log.Debug("essence found in object storage",
		zap.String("s3_bucket", event.S3Bucket),
		zap.String("file", event.File),
		zap.Int64("size", info.Size),
		zap.String("etag", info.ETag),
	)
}

func (h *LinkedHandler) getPID(ctx context.Context) (_ string, err error) {
	ctx, end := step(ctx, "get_pid")
	defer func() { end(err) }()

	pid, err := h.PID.GetPID(ctx)
	if err != nil {
		return "", Requeue("Unable to get a PID from the PID service", KV("error", err.Error()))
	}
	if pid == "" {
		return "", Requeue("PID service returned an empty PID")
	}
	return pid, nil
}

func (h *LinkedHandler) createFragment(ctx context.Context, umid, title string) (_ string, err error) {
	ctx, end := step(ctx, "create_fragment", attribute.String("umid", umid))
	defer func() { end(err) }()

	h.log.Debug(fmt.Sprintf("Creating fragment for object with umid: %s", umid))
	resp, err := h.Backend.CreateFragment(ctx, umid, title)
	if err != nil {
		return "", backendStop(fmt.Sprintf("Unable to create a fragment for umid: %s", umid), err, KV("umid", umid))
	}
	fragmentID := resp.Internal.FragmentID
	if fragmentID == "" {
		return "", Stop("fragmentId not found in the response of the create fragment call",
			KV("umid", umid),
			KV("create_fragment_response", resp),
		)
	}
	h.log.Debug(fmt.Sprintf("Fragment created with id: %s", fragmentID))
	return fragmentID, nil
}

// addMetadata writes the sidecar onto the new fragment. MediaHaven creates
// fragments asynchronously, so 403/404 are retried with backoff.
func (h *LinkedHandler) addMetadata(ctx context.Context, fragmentID string, meta mediahaven.FragmentMetadata) (err error) {
	ctx, end := step(ctx, "add_metadata", attribute.String("fragment_id", fragmentID))
	defer func() { end(err) }()

	fields := []Field{KV("fragment_id", fragmentID), KV("media_id", meta.MediaID)}

	sidecar, err := meta.Sidecar()
	if err != nil {
		return Stop("Unable to build the metadata sidecar", append(fields, KV("error", err.Error()))...)
	}

	cfg := h.Retry
	cfg.Logger = h.log
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RecordRetry("update_fragment")
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	ok, err := retry.DoValue(ctx, cfg, mediahaven.IsNotYetWritable, func(ctx context.Context) (bool, error) {
		return h.Backend.UpdateFragment(ctx, fragmentID, sidecar, mediahaven.UpdateReasonLinked)
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return Stop(
				fmt.Sprintf("Fragment %s not writable after %d attempts", fragmentID, exhausted.Attempts),
				append(fields, KV("error", err.Error()), KV("error_response", mediahaven.ResponseBody(err)))...,
			)
		}
		return backendStop(fmt.Sprintf("Unable to add MediaID metadata for fragment_id: %s", fragmentID), err, fields...)
	}
	if !ok {
		return Stop(
			fmt.Sprintf("Unable to update the metadata for fragment id: %s and media id: %s", fragmentID, meta.MediaID),
			fields...,
		)
	}
	return nil
}

func (h *LinkedHandler) publishGetMetadata(ctx context.Context, mediaID string) (err error) {
	ctx, end := step(ctx, "publish_get_metadata", attribute.String("media_id", mediaID))
	defer func() { end(err) }()

	payload, err := events.NewGetMetadataRequest(h.Now(), mediaID).Marshal()
	if err != nil {
		return Stop("Unable to build the getMetadataRequest", KV("media_id", mediaID), KV("error", err.Error()))
	}
	if err := h.Publisher.Publish(ctx, h.GetMetadataRoutingKey, payload, mediaID); err != nil {
		return Stop("Unable to publish the getMetadataRequest",
			KV("media_id", mediaID),
			KV("routing_key", h.GetMetadataRoutingKey),
			KV("error", err.Error()),
		)
	}
	metrics.GetMetadataPublished.Inc()
	return nil
}
