package schema

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

const ordersSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "id": {"type": ["null", "integer"]},
    "updated_at": {"type": ["null", "string"], "format": "date-time"},
    "line_items": {"type": ["null", "array"]}
  }
}`

func TestLoader_LoadsAndValidates(t *testing.T) {
	l := NewLoader(zap.NewNop(), fstest.MapFS{"orders.json": {Data: []byte(ordersSchema)}})

	s, err := l.Load("orders")
	require.NoError(t, err)
	assert.False(t, s.Generic)
	assert.Equal(t, "object", s.Document["type"])

	require.NoError(t, s.Validate(models.Record{"id": int64(1), "updated_at": "2024-01-01T00:00:00+00:00", "line_items": []any{}}))

	err = s.Validate(models.Record{"id": "not-a-number"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	again, err := l.Load("orders")
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestLoader_EarlierLayersWin(t *testing.T) {
	override := fstest.MapFS{"orders.json": {Data: []byte(`{"type":"object","properties":{"id":{"type":"string"}}}`)}}
	embedded := fstest.MapFS{"orders.json": {Data: []byte(ordersSchema)}}
	l := NewLoader(nil, override, embedded)

	s, err := l.Load("orders")
	require.NoError(t, err)
	require.NoError(t, s.Validate(models.Record{"id": "abc"}))
}

func TestLoader_GenericSchemaForUnknownStream(t *testing.T) {
	l := NewLoader(nil, fstest.MapFS{})

	s, err := l.Load("custom_stream")
	require.NoError(t, err)
	assert.True(t, s.Generic)
	assert.NoError(t, s.Validate(models.Record{"anything": map[string]any{"nested": true}}))
}

func TestLoader_InvalidSchemaIsConfigError(t *testing.T) {
	l := NewLoader(nil, fstest.MapFS{"bad.json": {Data: []byte(`{"type": 12}`)}})

	_, err := l.Load("bad")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
