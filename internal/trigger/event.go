// Package trigger ingests documents as they land in the bucket, from Cloud
// Storage notifications delivered over Pub/Sub (pull or push), and serves a
// small read API over the reconciled records.
package trigger

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/logging"
)

// EventFinalize is the notification type of a newly written object.
const EventFinalize = "OBJECT_FINALIZE"

// Event is a storage notification.
type Event struct {
	Type   string
	Bucket string
	Object string
}

// objectMetadata is the part of the notification payload we read.
type objectMetadata struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ParseEvent reads a storage notification from message attributes, falling
// back to the JSON object metadata in the payload.
func ParseEvent(attrs map[string]string, data []byte) Event {
	ev := Event{
		Type:   attrs["eventType"],
		Bucket: attrs["bucketId"],
		Object: attrs["objectId"],
	}
	if ev.Bucket == "" || ev.Object == "" {
		var md objectMetadata
		if err := json.Unmarshal(data, &md); err == nil {
			if ev.Bucket == "" {
				ev.Bucket = md.Bucket
			}
			if ev.Object == "" {
				ev.Object = md.Name
			}
		}
	}
	return ev
}

// Processor ingests one named document. *ingest.Batch implements it.
type Processor interface {
	Process(ctx context.Context, name string) ingest.Outcome
}

// Handler decides what to do with storage notifications.
type Handler struct {
	proc   Processor
	bucket string
}

// NewHandler creates a Handler. Notifications for buckets other than bucket
// are ignored; an empty bucket accepts all.
func NewHandler(proc Processor, bucket string) *Handler {
	return &Handler{proc: proc, bucket: bucket}
}

// Handle processes one notification and reports whether it should be
// acknowledged. Irrelevant events, successes, skips and permanent failures
// are acknowledged; retryable failures are not, so the message is redelivered.
func (h *Handler) Handle(ctx context.Context, attrs map[string]string, data []byte) bool {
	ev := ParseEvent(attrs, data)
	log := logging.FromContext(logging.WithDocument(ctx, ev.Object))

	switch {
	case ev.Type != "" && ev.Type != EventFinalize:
		log.Debug("ignoring storage event", "event_type", ev.Type)
		return true
	case ev.Object == "" || strings.HasSuffix(ev.Object, "/"):
		log.Debug("ignoring notification without a document")
		return true
	case h.bucket != "" && ev.Bucket != h.bucket:
		log.Warn("ignoring notification for another bucket", "bucket", ev.Bucket)
		return true
	}

	out := h.proc.Process(ctx, ev.Object)
	if out.Failed() && ingest.IsRetryable(out.Err) {
		return false
	}
	return true
}
