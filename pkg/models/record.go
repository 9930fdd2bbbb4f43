// Package models provides the data shapes exchanged between the extraction
// engine, the Shopify source and the CLI protocol writer.
package models

import (
	"time"
)

// Record is one entity instance keyed by the API's native field names. The
// same type is used before transformation (raw) and after (normalized).
type Record map[string]any

// Clone returns a shallow copy of the record. Nested maps and slices are
// shared with the original.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the field is present and not null.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// StreamState is the persisted state of one stream, e.g.
// {"updated_at": "2024-01-01T00:00:00+00:00", "deleted": {"id": 42}}.
type StreamState map[string]any

// Clone returns a deep copy of nested state maps.
func (s StreamState) Clone() StreamState {
	if s == nil {
		return nil
	}
	out := make(StreamState, len(s))
	for k, v := range s {
		switch nested := v.(type) {
		case StreamState:
			out[k] = nested.Clone()
		case map[string]any:
			out[k] = StreamState(nested).Clone()
		default:
			out[k] = v
		}
	}
	return out
}

// Sub returns the nested state stored under key, or nil.
func (s StreamState) Sub(key string) StreamState {
	switch nested := s[key].(type) {
	case StreamState:
		return nested
	case map[string]any:
		return StreamState(nested)
	default:
		return nil
	}
}

// State maps stream names to their state.
type State map[string]StreamState

// MessageType identifies the kind of protocol message written by the CLI.
type MessageType string

const (
	MessageTypeRecord MessageType = "RECORD"
	MessageTypeState  MessageType = "STATE"
	MessageTypeLog    MessageType = "LOG"

	MessageTypeCatalog          MessageType = "CATALOG"
	MessageTypeConnectionStatus MessageType = "CONNECTION_STATUS"
	MessageTypeSpec             MessageType = "SPEC"
)

// RecordMessage wraps a normalized record for output.
type RecordMessage struct {
	Stream    string `json:"stream"`
	Data      Record `json:"data"`
	EmittedAt int64  `json:"emitted_at"`
}

// StateMessage carries the state of one stream after its sync finished.
type StateMessage struct {
	Stream string      `json:"stream"`
	Data   StreamState `json:"data"`
}

// LogMessage carries a stream-level failure report.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Message is the envelope written one per line by the read command.
type Message struct {
	Type   MessageType    `json:"type"`
	Record *RecordMessage `json:"record,omitempty"`
	State  *StateMessage  `json:"state,omitempty"`
	Log    *LogMessage    `json:"log,omitempty"`

	Catalog          *Catalog          `json:"catalog,omitempty"`
	ConnectionStatus *ConnectionStatus `json:"connectionStatus,omitempty"`
	Spec             map[string]any    `json:"spec,omitempty"`
}

// NewRecordMessage builds a RECORD envelope stamped with the emission time.
func NewRecordMessage(stream string, rec Record, at time.Time) Message {
	return Message{
		Type:   MessageTypeRecord,
		Record: &RecordMessage{Stream: stream, Data: rec, EmittedAt: at.UnixMilli()},
	}
}

// NewStateMessage builds a STATE envelope.
func NewStateMessage(stream string, state StreamState) Message {
	return Message{Type: MessageTypeState, State: &StateMessage{Stream: stream, Data: state}}
}

// NewLogMessage builds a LOG envelope.
func NewLogMessage(level, msg string) Message {
	return Message{Type: MessageTypeLog, Log: &LogMessage{Level: level, Message: msg}}
}

// CatalogStream describes one stream in the discover output.
type CatalogStream struct {
	Name                    string         `json:"name"`
	JSONSchema              map[string]any `json:"json_schema"`
	SupportedSyncModes      []string       `json:"supported_sync_modes"`
	SourceDefinedCursor     bool           `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string       `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string     `json:"source_defined_primary_key,omitempty"`
}

// Catalog lists the streams a source offers.
type Catalog struct {
	Streams []CatalogStream `json:"streams"`
}

// ConnectionStatus is the outcome of a check.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewCatalogMessage builds a CATALOG envelope.
func NewCatalogMessage(c *Catalog) Message {
	return Message{Type: MessageTypeCatalog, Catalog: c}
}

// NewConnectionStatusMessage builds a CONNECTION_STATUS envelope; a nil err
// reports success.
func NewConnectionStatusMessage(err error) Message {
	status := &ConnectionStatus{Status: "SUCCEEDED"}
	if err != nil {
		status = &ConnectionStatus{Status: "FAILED", Message: err.Error()}
	}
	return Message{Type: MessageTypeConnectionStatus, ConnectionStatus: status}
}

// NewSpecMessage builds a SPEC envelope.
func NewSpecMessage(spec map[string]any) Message {
	return Message{Type: MessageTypeSpec, Spec: spec}
}
