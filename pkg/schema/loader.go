// Package schema loads the JSON schemas of streams and validates records
// against them.
package schema

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"path"
	"sync"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// Schema is the compiled schema of one stream.
type Schema struct {
	Stream string
	// Document is the schema as published in the catalog.
	Document map[string]any
	// Generic is set when no schema file exists for the stream.
	Generic  bool
	compiled *jsonschema.Schema
}

// Validate checks rec against the schema.
func (s *Schema) Validate(rec models.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "encode record for validation")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "decode record for validation")
	}
	if err := s.compiled.Validate(inst); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "record does not match schema of "+s.Stream).
			WithDetail("stream", s.Stream).
			WithDetail("record_id", rec["id"])
	}
	return nil
}

// genericDocument accepts any object.
func genericDocument() map[string]any {
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": true,
		"properties":           map[string]any{},
	}
}

// Loader reads "<stream>.json" files from a stack of file systems; earlier
// ones take precedence. Compiled schemas are cached.
type Loader struct {
	layers []fs.FS
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*Schema
}

// NewLoader creates a loader over layers.
func NewLoader(logger *zap.Logger, layers ...fs.FS) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		layers: layers,
		logger: logger.With(zap.String("component", "schema")),
		cache:  make(map[string]*Schema),
	}
}

// Load returns the schema of stream, or a permissive generic schema when
// no layer has one.
func (l *Loader) Load(stream string) (*Schema, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.cache[stream]; ok {
		return s, nil
	}

	name := stream + ".json"
	var raw []byte
	for _, layer := range l.layers {
		data, err := fs.ReadFile(layer, name)
		if err == nil {
			raw = data
			break
		}
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "read schema "+name)
		}
	}

	s := &Schema{Stream: stream}
	if raw == nil {
		l.logger.Debug("no schema file, using generic schema", zap.String("stream", stream))
		s.Generic = true
		s.Document = genericDocument()
		var err error
		if raw, err = json.Marshal(s.Document); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "encode generic schema")
		}
	} else if err := json.Unmarshal(raw, &s.Document); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parse schema "+name)
	}

	compiled, err := compile(path.Join("schemas", name), raw)
	if err != nil {
		return nil, err
	}
	s.compiled = compiled
	l.cache[stream] = s
	return s, nil
}

func compile(name string, raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "parse schema "+name)
	}
	url := "file:///" + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "add schema "+name)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "compile schema "+name)
	}
	return compiled, nil
}
