package bulk

import (
	"context"
	"time"
)

// Gate limits the number of bulk operations a process keeps outstanding.
// Shopify runs one bulk query per app and shop at a time.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting n holders; n < 1 means 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	<-g.slots
}

// Window is the cursor range of one bulk operation. The zero Window means
// no filter.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether w is unfiltered.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Windows splits [start, end) into consecutive windows of size. A
// non-positive size yields a single window; an empty range yields none.
func Windows(start, end time.Time, size time.Duration) []Window {
	if !start.Before(end) {
		return nil
	}
	if size <= 0 {
		return []Window{{Start: start, End: end}}
	}
	var out []Window
	for s := start; s.Before(end); s = s.Add(size) {
		e := s.Add(size)
		if e.After(end) {
			e = end
		}
		out = append(out, Window{Start: s, End: e})
	}
	return out
}
