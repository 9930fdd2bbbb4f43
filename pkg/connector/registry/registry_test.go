package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	calls := 0
	factory := func(cfg *config.SourceConfig, logger *zap.Logger) (core.Source, error) {
		calls++
		return nil, nil
	}

	require.NoError(t, r.RegisterSource("b", factory))
	require.NoError(t, r.RegisterSource("a", factory))
	assert.Equal(t, []string{"a", "b"}, r.ListSources())

	err := r.RegisterSource("a", factory)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = r.CreateSource("a", config.Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = r.CreateSource("missing", config.Default(), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistry_FactoryErrorIsWrapped(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource("broken", func(*config.SourceConfig, *zap.Logger) (core.Source, error) {
		return nil, errors.New(errors.ErrorTypeConfig, "shop is required")
	}))

	_, err := r.CreateSource("broken", config.Default(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
