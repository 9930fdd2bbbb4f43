// Package extract implements the stream synchronization engine.
//
// A Descriptor declares how an entity is read; New turns it into a Stream
// according to its Mode. All modes share the same contract: Sync reads
// everything newer than the prior state, pushes normalized records to the
// caller in order and returns the advanced state.
package extract

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// Mode selects the extraction strategy of a stream.
type Mode int

const (
	// ModeREST pages through a REST collection, optionally once per parent record.
	ModeREST Mode = iota
	// ModeNested projects an array field of each parent record.
	ModeNested
	// ModeBulk runs asynchronous bulk GraphQL operations.
	ModeBulk
)

func (m Mode) String() string {
	switch m {
	case ModeREST:
		return "rest"
	case ModeNested:
		return "nested"
	case ModeBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// DeletedStateKey holds the events cursor inside a stream state.
const DeletedStateKey = "deleted"

// Descriptor is the static declaration of one stream.
type Descriptor struct {
	Name string
	Mode Mode

	// Path is the REST path relative to the API root, "<DataField>.json" when empty.
	Path string
	// DataField names the response array (or object) holding the records.
	DataField  string
	PrimaryKey []string

	CursorField string
	// OrderField is sent as "order=<field> asc" on the first request.
	OrderField string
	// FilterField receives the state cursor on the first request.
	FilterField string
	// FirstRequestParams are sent on the first request only.
	FirstRequestParams url.Values

	// NextPageField is a body path holding the next page cursor; when empty
	// the Link header is used. The cursor is sent as NextPageParam.
	NextPageField string
	NextPageParam string

	// FullRefresh streams are read completely on every sync and keep no state.
	FullRefresh bool

	// DeletedEntity enables the tombstone merge for events of this subject type.
	DeletedEntity string

	// Parent is read first; children are derived from its records.
	Parent *Descriptor
	// NestedField is the parent array projected by ModeNested; defaults to DataField.
	NestedField string
	// SliceKey is the parent field substituted into PathTemplate as "{id}".
	SliceKey     string
	PathTemplate string
	// Mutations copies parent fields into each child: child field -> parent field.
	Mutations map[string]string

	// Bulk configures ModeBulk streams.
	Bulk *BulkSpec
}

// BulkSpec describes the bulk query of a stream and how result lines are
// reassembled into records.
type BulkSpec struct {
	// Query renders the query for one window; start and end are zero for
	// unfiltered streams.
	Query func(start, end time.Time) string
	// RecordType is the __typename of the lines emitted as records.
	RecordType string
	// Components maps child __typename to the list field of its parent the
	// child is attached to.
	Components map[string]string
}

// RequestPath returns the REST path of the stream.
func (d *Descriptor) RequestPath() string {
	if d.Path != "" {
		return d.Path
	}
	return d.DataField + ".json"
}

// SlicePath renders PathTemplate for one parent id.
func (d *Descriptor) SlicePath(id string) string {
	return strings.ReplaceAll(d.PathTemplate, "{id}", id)
}

// Incremental reports whether the stream keeps a cursor state.
func (d *Descriptor) Incremental() bool {
	return !d.FullRefresh && d.CursorField != ""
}

// nestedField returns the projected array field.
func (d *Descriptor) nestedField() string {
	if d.NestedField != "" {
		return d.NestedField
	}
	return d.DataField
}

// Client is the transport used by streams.
type Client interface {
	Get(ctx context.Context, path string, params url.Values) (*clients.Response, error)
	GraphQL(ctx context.Context, query string) (*clients.Response, error)
	Download(ctx context.Context, rawURL string, handle func(io.Reader) error) error
}

// BulkFactory builds ModeBulk streams.
type BulkFactory interface {
	NewStream(desc Descriptor, deps Deps) Stream
}

// Deps are the collaborators shared by all streams of a source.
type Deps struct {
	Client     Client
	Transforms *transform.Registry
	Bulk       BulkFactory
	Logger     *zap.Logger

	PageSize  int
	StartDate time.Time
	// ShopURL is stamped on tombstone records.
	ShopURL string
}

// EmitFunc receives normalized records. Returning an error stops the sync.
type EmitFunc func(models.Record) error

// Stream is a runnable stream. Sync is not restartable: a new call re-reads
// from prior.
type Stream interface {
	Name() string
	Descriptor() Descriptor
	Sync(ctx context.Context, prior models.StreamState, emit EmitFunc) (models.StreamState, error)
}
