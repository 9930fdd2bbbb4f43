package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// restStream pages through a REST collection. With a Parent it reads the
// collection once per parent record instead (PathTemplate).
type restStream struct {
	desc Descriptor
	deps Deps
}

func (s *restStream) Name() string           { return s.desc.Name }
func (s *restStream) Descriptor() Descriptor { return s.desc }

func (s *restStream) Sync(ctx context.Context, prior models.StreamState, emit EmitFunc) (models.StreamState, error) {
	ctx = logger.WithStream(ctx, s.desc.Name)
	log := logger.FromContext(ctx, s.deps.Logger)

	tracker := newTracker(&s.desc, s.deps, prior)
	em := NewEmitter(s.desc, s.deps, tracker, emit, log)

	if s.desc.Parent != nil {
		return s.syncSlices(ctx, prior, tracker, em)
	}

	builder := RequestBuilder{Desc: &s.desc, PageSize: s.deps.PageSize}
	if s.desc.Incremental() {
		builder.Filter = tracker.Lower()
	}
	err := paginate(ctx, s.deps.Client, &s.desc, s.desc.RequestPath(), builder, em.Skip, em.Process)
	state := tracker.State()
	if err != nil {
		if sub := prior.Sub(DeletedStateKey); sub != nil {
			state[DeletedStateKey] = sub
		}
		return state, err
	}

	log.Debug("rest stream read", zap.Int64("records", em.Count()), zap.Any("cursor", tracker.Value()))

	if s.desc.DeletedEntity != "" {
		deleted, err := mergeDeleted(ctx, &s.desc, s.deps, prior.Sub(DeletedStateKey), emit, log)
		if len(deleted) > 0 {
			state[DeletedStateKey] = deleted
		}
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

// syncSlices reads the child collection of every parent record. The parent
// state is kept under the parent's name so parents are not re-read.
func (s *restStream) syncSlices(ctx context.Context, prior models.StreamState, tracker *Tracker, em *Emitter) (models.StreamState, error) {
	parentDesc := *s.desc.Parent
	parentDesc.DeletedEntity = ""
	parent, err := New(parentDesc, s.deps)
	if err != nil {
		return prior, err
	}

	key := s.desc.SliceKey
	if key == "" {
		key = "id"
	}

	parentState, err := parent.Sync(ctx, prior.Sub(parentDesc.Name), func(p models.Record) error {
		id := FormatCursor(p[key])
		if id == "" {
			return nil
		}
		builder := RequestBuilder{Desc: &s.desc, PageSize: s.deps.PageSize}
		return paginate(ctx, s.deps.Client, &s.desc, s.desc.SlicePath(id), builder, em.Skip, func(child models.Record) error {
			applyMutations(child, p, s.desc.Mutations)
			return em.Process(child)
		})
	})

	state := tracker.State()
	if len(parentState) > 0 {
		state[parentDesc.Name] = parentState
	}
	return state, err
}

// paginate requests path until the last page, handing every decoded record
// to handle in page order.
func paginate(ctx context.Context, client Client, desc *Descriptor, path string, builder RequestBuilder,
	skip func(error), handle func(models.Record) error,
) error {
	var token *PageToken
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "sync cancelled")
		}
		resp, err := client.Get(ctx, path, builder.Params(token))
		if err != nil {
			return err
		}
		for _, rec := range decodeRecords(resp, desc.DataField, skip) {
			if err := handle(rec); err != nil {
				return err
			}
		}
		if token = NextPageToken(desc, resp); token == nil {
			return nil
		}
	}
}

// newTracker seeds the cursor of desc. The first request of a stream without
// state filters on the start date, or on id 0 for id-ordered streams.
func newTracker(desc *Descriptor, deps Deps, prior models.StreamState) *Tracker {
	if !desc.Incremental() {
		return nil
	}
	var fallback any
	switch {
	case desc.FilterField == "since_id":
		fallback = int64(0)
	case !deps.StartDate.IsZero():
		fallback = transform.FormatTime(deps.StartDate.UTC().Truncate(time.Second))
	}
	return NewTracker(desc.CursorField, prior, fallback)
}

// applyMutations copies parent fields into child.
func applyMutations(child, parent models.Record, mutations map[string]string) {
	for to, from := range mutations {
		if v, ok := parent[from]; ok {
			child[to] = v
		}
	}
}
