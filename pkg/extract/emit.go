package extract

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// Emitter runs raw records through the stream transform and hands the
// results to the caller, keeping the tracker in step.
type Emitter struct {
	desc      Descriptor
	transform transform.Func
	tracker   *Tracker
	emit      EmitFunc
	logger    *zap.Logger
	count     int64
}

// NewEmitter creates the emitter of one sync. tracker may be nil for
// full-refresh streams.
func NewEmitter(desc Descriptor, deps Deps, tracker *Tracker, emit EmitFunc, logger *zap.Logger) *Emitter {
	return &Emitter{
		desc:      desc,
		transform: deps.Transforms.Lookup(desc.Name),
		tracker:   tracker,
		emit:      emit,
		logger:    logger,
	}
}

// Count returns the number of records emitted so far.
func (e *Emitter) Count() int64 {
	return e.count
}

// Transform normalizes one raw record. A malformed record is logged and
// yields no output; any other transform error is returned.
func (e *Emitter) Transform(raw models.Record) ([]models.Record, error) {
	out, err := e.transform(raw)
	if err == nil {
		return out, nil
	}
	if errors.IsType(err, errors.ErrorTypeMalformedRecord) {
		e.Skip(err)
		return nil, nil
	}
	return nil, err
}

// Skip records a malformed record that is dropped.
func (e *Emitter) Skip(err error) {
	metrics.RecordsSkipped.WithLabelValues(e.desc.Name, "malformed").Inc()
	e.logger.Warn("skipping malformed record", zap.Error(err))
}

// EmitGroup emits the records derived from one raw record. Every record of
// an incremental stream must carry its cursor. The tracker sees the group
// only after all of it was emitted, so a state checkpoint never lands in the
// middle of one parent's children.
func (e *Emitter) EmitGroup(group []models.Record) error {
	incremental := e.tracker != nil && e.desc.Incremental()
	if incremental {
		for _, rec := range group {
			if !rec.Has(e.desc.CursorField) {
				return errors.Newf(errors.ErrorTypeData, "record of stream %s has no cursor field %s", e.desc.Name, e.desc.CursorField).
					WithDetail("record_id", rec["id"])
			}
		}
	}

	cursors := make([]any, 0, len(group))
	for _, rec := range group {
		if incremental {
			v := rec[e.desc.CursorField]
			if e.tracker.Older(v) {
				metrics.RecordsSkipped.WithLabelValues(e.desc.Name, "older_than_state").Inc()
				continue
			}
			cursors = append(cursors, v)
		}
		if err := e.emit(rec); err != nil {
			return err
		}
		e.count++
		metrics.RecordsEmitted.WithLabelValues(e.desc.Name).Inc()
	}

	for _, v := range cursors {
		e.tracker.Observe(v)
	}
	return nil
}

// Process transforms and emits one raw record.
func (e *Emitter) Process(raw models.Record) error {
	group, err := e.Transform(raw)
	if err != nil {
		return err
	}
	return e.EmitGroup(group)
}

// DecodeRecord parses one JSON object, keeping numbers as json.Number so
// large ids survive untouched.
func DecodeRecord(raw []byte) (models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid record json")
	}
	if m == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRecord, "record is not an object")
	}
	return models.Record(m), nil
}

// decodeRecords extracts the records held by field: each element of an
// array, or a single object. Malformed elements are passed to skip.
func decodeRecords(resp *clients.Response, field string, skip func(error)) []models.Record {
	res := gjson.GetBytes(resp.Body, field)
	switch {
	case res.IsArray():
		elems := res.Array()
		out := make([]models.Record, 0, len(elems))
		for _, elem := range elems {
			rec, err := DecodeRecord([]byte(elem.Raw))
			if err != nil {
				skip(err)
				continue
			}
			out = append(out, rec)
		}
		return out
	case res.IsObject():
		rec, err := DecodeRecord([]byte(res.Raw))
		if err != nil {
			skip(err)
			return nil
		}
		return []models.Record{rec}
	default:
		return nil
	}
}
