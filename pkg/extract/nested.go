package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// nestedStream emits the elements of an array field of each parent record,
// e.g. the refunds embedded in orders. No extra requests are made.
type nestedStream struct {
	desc Descriptor
	deps Deps
}

func (s *nestedStream) Name() string           { return s.desc.Name }
func (s *nestedStream) Descriptor() Descriptor { return s.desc }

func (s *nestedStream) Sync(ctx context.Context, prior models.StreamState, emit EmitFunc) (models.StreamState, error) {
	ctx = logger.WithStream(ctx, s.desc.Name)
	log := logger.FromContext(ctx, s.deps.Logger)

	parentDesc := *s.desc.Parent
	parentDesc.DeletedEntity = ""
	parent, err := New(parentDesc, s.deps)
	if err != nil {
		return prior, err
	}

	tracker := newTracker(&s.desc, s.deps, prior)
	em := NewEmitter(s.desc, s.deps, tracker, emit, log)
	field := s.desc.nestedField()

	var parents int64
	parentState, err := parent.Sync(ctx, prior.Sub(parentDesc.Name), func(p models.Record) error {
		parents++
		for _, child := range nestedChildren(p[field], em) {
			applyMutations(child, p, s.desc.Mutations)
			if err := em.Process(child); err != nil {
				return err
			}
		}
		return nil
	})

	state := tracker.State()
	if len(parentState) > 0 {
		state[parentDesc.Name] = parentState
	}
	if err == nil {
		log.Debug("nested stream read", zap.Int64("parents", parents), zap.Int64("records", em.Count()))
	}
	return state, err
}

// nestedChildren copies the object elements of an array value. Elements that
// are not objects are skipped as malformed.
func nestedChildren(v any, em *Emitter) []models.Record {
	switch items := v.(type) {
	case []any:
		out := make([]models.Record, 0, len(items))
		for _, item := range items {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, models.Record(m).Clone())
			case models.Record:
				out = append(out, m.Clone())
			default:
				em.Skip(errors.Newf(errors.ErrorTypeMalformedRecord, "nested element is %T, not an object", item))
			}
		}
		return out
	case []map[string]any:
		out := make([]models.Record, 0, len(items))
		for _, m := range items {
			out = append(out, models.Record(m).Clone())
		}
		return out
	case []models.Record:
		out := make([]models.Record, 0, len(items))
		for _, m := range items {
			out = append(out, m.Clone())
		}
		return out
	default:
		return nil
	}
}
