// Package core defines the contract between sources and the CLI.
package core

import (
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Source is the interface that all source connectors must implement
type Source interface {
	// Spec describes the configuration accepted by the source.
	Spec() map[string]any
	// Check verifies that the configured credentials can read the shop.
	Check(ctx context.Context) error
	// Discover lists the streams with their schemas.
	Discover(ctx context.Context) (*models.Catalog, error)
	// Read syncs the selected streams, resuming from state, and writes
	// RECORD, STATE and LOG messages to out in order.
	Read(ctx context.Context, state models.State, out MessageWriter) error
	Close() error
}

// MessageWriter receives protocol messages.
type MessageWriter interface {
	Write(msg models.Message) error
}

// MessageWriterFunc adapts a function to MessageWriter.
type MessageWriterFunc func(models.Message) error

// Write calls f.
func (f MessageWriterFunc) Write(msg models.Message) error {
	return f(msg)
}

// JSONLinesWriter encodes one message per line. It is safe for concurrent
// use.
type JSONLinesWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesWriter writes messages to w.
func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLinesWriter{enc: enc}
}

// Write encodes msg followed by a newline.
func (w *JSONLinesWriter) Write(msg models.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(msg)
}
