// Package transform normalizes raw upstream records.
//
// A Func maps one raw record to zero, one or many normalized records. Funcs
// are pure: they never perform I/O and never touch shared state, so the
// extraction engine can call them from any stream. Rules in this package are
// small building blocks composed with Chain; entity-specific hooks live next
// to the stream catalogue and are registered by stream name.
package transform

import (
	"sync"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Func transforms one raw record.
type Func func(models.Record) ([]models.Record, error)

// Identity returns the record unchanged.
func Identity(r models.Record) ([]models.Record, error) {
	return []models.Record{r}, nil
}

// Chain applies fns in order. Each output of one step is fed to the next,
// so a fan-out step multiplies the records seen by later steps.
func Chain(fns ...Func) Func {
	return func(r models.Record) ([]models.Record, error) {
		current := []models.Record{r}
		for _, fn := range fns {
			next := make([]models.Record, 0, len(current))
			for _, rec := range current {
				out, err := fn(rec)
				if err != nil {
					return nil, err
				}
				next = append(next, out...)
			}
			current = next
		}
		return current, nil
	}
}

// Each lifts an in-place mutation into a Func.
func Each(fn func(models.Record) error) Func {
	return func(r models.Record) ([]models.Record, error) {
		if err := fn(r); err != nil {
			return nil, err
		}
		return []models.Record{r}, nil
	}
}

// Registry maps stream names to their transform.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register sets the transform of stream, replacing any previous one.
func (r *Registry) Register(stream string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[stream] = fn
}

// Lookup returns the transform of stream, or Identity.
func (r *Registry) Lookup(stream string) Func {
	if r == nil {
		return Identity
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.funcs[stream]; ok {
		return fn
	}
	return Identity
}

// Malformed marks a record-level failure. The engine logs and skips the
// record instead of failing the stream.
func Malformed(field string, cause error) error {
	return errors.Wrap(cause, errors.ErrorTypeMalformedRecord, "malformed field "+field).WithDetail("field", field)
}
