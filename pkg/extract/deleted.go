package extract

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// eventsDescriptor describes the destroy events of one subject type.
func eventsDescriptor(desc *Descriptor) *Descriptor {
	return &Descriptor{
		Name:        desc.Name + "_deleted",
		Path:        "events.json",
		DataField:   "events",
		CursorField: "id",
		FilterField: "since_id",
		FirstRequestParams: url.Values{
			"filter": {desc.DeletedEntity},
			"verb":   {"destroy"},
		},
	}
}

// mergeDeleted emits a tombstone for every destroy event newer than prior
// and returns the advanced events state. The stream's own cursor is never
// touched here.
func mergeDeleted(ctx context.Context, desc *Descriptor, deps Deps, prior models.StreamState, emit EmitFunc, log *zap.Logger) (models.StreamState, error) {
	events := eventsDescriptor(desc)
	tracker := NewTracker(events.CursorField, prior, int64(0))
	builder := RequestBuilder{Desc: events, PageSize: deps.PageSize, Filter: tracker.Lower()}

	skip := func(err error) {
		metrics.RecordsSkipped.WithLabelValues(desc.Name, "malformed").Inc()
		log.Warn("skipping malformed event", zap.Error(err))
	}

	var count int64
	err := paginate(ctx, deps.Client, events, events.RequestPath(), builder, skip, func(event models.Record) error {
		if tracker.Older(event["id"]) {
			return nil
		}
		if err := emit(Tombstone(desc, event, deps.ShopURL)); err != nil {
			return err
		}
		count++
		metrics.RecordsEmitted.WithLabelValues(desc.Name).Inc()
		tracker.Observe(event["id"])
		return nil
	})

	log.Debug("deleted events merged", zap.Int64("tombstones", count), zap.Any("events_cursor", tracker.Value()))
	return tracker.State(), err
}

// Tombstone builds the deletion record of a destroy event. The cursor field
// carries the event time, except for id-ordered streams where it would
// overwrite the deleted id.
func Tombstone(desc *Descriptor, event models.Record, shopURL string) models.Record {
	rec := models.Record{
		"id":                  event["subject_id"],
		"deleted_at":          event["created_at"],
		"deleted_message":     event["message"],
		"deleted_description": event["description"],
		"shop_url":            shopURL,
	}
	if ts, err := transform.ToRFC3339(event["created_at"]); err == nil {
		rec["deleted_at"] = ts
	}
	if desc.CursorField != "" && desc.CursorField != "id" {
		rec[desc.CursorField] = rec["deleted_at"]
	}
	return rec
}
