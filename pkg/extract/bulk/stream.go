package bulk

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// Stream reads a ModeBulk descriptor, one bulk operation per window.
type Stream struct {
	desc   extract.Descriptor
	deps   extract.Deps
	engine *Engine
}

func (s *Stream) Name() string                   { return s.desc.Name }
func (s *Stream) Descriptor() extract.Descriptor { return s.desc }

// Sync runs the windows between the prior cursor and now in order. State
// advances after each completed window, so a failure keeps the progress of
// the windows before it.
func (s *Stream) Sync(ctx context.Context, prior models.StreamState, emit extract.EmitFunc) (models.StreamState, error) {
	ctx = logger.WithStream(ctx, s.desc.Name)
	log := logger.FromContext(ctx, s.engine.logger)

	var tracker *extract.Tracker
	if s.desc.Incremental() {
		tracker = extract.NewTracker(s.desc.CursorField, prior, nil)
	}
	em := extract.NewEmitter(s.desc, s.deps, tracker, emit, log)

	for _, w := range s.windows(tracker) {
		query := s.desc.Bulk.Query(w.Start, w.End)
		err := s.engine.Run(ctx, s.deps.Client, s.desc.Name, query, w, func(lines []models.Record) error {
			return s.emitWindow(lines, em, log)
		})
		if err != nil {
			return tracker.State(), err
		}
	}
	log.Debug("bulk stream read", zap.Int64("records", em.Count()), zap.Any("cursor", tracker.Value()))
	return tracker.State(), nil
}

// windows returns the ranges to query. Streams without a filter field, and
// full-refresh streams, use one unfiltered operation.
func (s *Stream) windows(tracker *extract.Tracker) []Window {
	if s.desc.FilterField == "" || !s.desc.Incremental() {
		return []Window{{}}
	}
	start := s.deps.StartDate
	if v := tracker.Lower(); v != nil {
		if t, err := transform.ParseTime(extract.FormatCursor(v)); err == nil {
			start = t
		}
	}
	var size time.Duration
	if s.engine.cfg.WindowInDays > 0 {
		size = time.Duration(s.engine.cfg.WindowInDays) * 24 * time.Hour
	}
	return Windows(start.UTC(), s.engine.now().UTC(), size)
}

// emitWindow rebuilds, transforms and emits the records of one operation in
// ascending cursor order.
func (s *Stream) emitWindow(lines []models.Record, em *extract.Emitter, log *zap.Logger) error {
	records, orphans := Compose(lines, s.desc.Bulk)
	if orphans > 0 {
		log.Warn("dropped result lines without parent", zap.Int("count", orphans))
	}

	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		group, err := em.Transform(rec)
		if err != nil {
			return err
		}
		for _, r := range group {
			StripMarkers(r)
			out = append(out, r)
		}
	}

	if cursor := s.desc.CursorField; cursor != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return extract.CompareCursor(out[i][cursor], out[j][cursor]) < 0
		})
	}
	return em.EmitGroup(out)
}
