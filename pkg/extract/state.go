package extract

import (
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Tracker owns the cursor of one stream during a sync. The value only ever
// moves forward: Observe replaces it with strictly larger values and
// ignores everything else, so server ordering is never relied upon.
type Tracker struct {
	field    string
	prior    any
	current  any
	fallback any
}

// NewTracker seeds a tracker from the prior state. fallback is the filter
// boundary used when the state holds no cursor yet.
func NewTracker(field string, prior models.StreamState, fallback any) *Tracker {
	t := &Tracker{field: field, fallback: fallback}
	if v, ok := prior[field]; ok && v != nil {
		t.prior = v
		t.current = v
	}
	return t
}

// Field returns the cursor field name.
func (t *Tracker) Field() string {
	return t.field
}

// Lower returns the lower filter boundary for the first request.
func (t *Tracker) Lower() any {
	if t == nil {
		return nil
	}
	if t.prior != nil {
		return t.prior
	}
	return t.fallback
}

// Older reports whether v sorts strictly before the prior state value.
// Values equal to the state are kept since several records can share one
// timestamp.
func (t *Tracker) Older(v any) bool {
	return t.prior != nil && CompareCursor(v, t.prior) < 0
}

// Observe merges v into the high-water mark.
func (t *Tracker) Observe(v any) {
	if v == nil {
		return
	}
	if t.current == nil || CompareCursor(v, t.current) > 0 {
		t.current = v
	}
}

// Value returns the current high-water mark, or nil.
func (t *Tracker) Value() any {
	if t == nil {
		return nil
	}
	return t.current
}

// State returns the cursor as a fresh stream state. A nil tracker, as
// used by full-refresh streams, yields an empty state.
func (t *Tracker) State() models.StreamState {
	state := models.StreamState{}
	if t != nil && t.current != nil {
		state[t.field] = t.current
	}
	return state
}
