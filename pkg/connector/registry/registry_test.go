package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
)

// stubSource satisfies core.Source without doing anything.
type stubSource struct{}

func (stubSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (stubSource) Discover(ctx context.Context) (*core.Schema, error)           { return nil, nil }
func (stubSource) Read(ctx context.Context) (*core.RecordStream, error)         { return nil, nil }
func (stubSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	return nil, nil
}
func (stubSource) Close(ctx context.Context) error { return nil }
func (stubSource) SupportsBatch() bool             { return true }
func (stubSource) SupportsStreaming() bool         { return true }
func (stubSource) Health(ctx context.Context) error { return nil }
func (stubSource) Metrics() map[string]interface{}  { return nil }

func TestRegisterAndCreateSource(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterSource("stub", func(cfg *config.BaseConfig) (core.Source, error) {
		return stubSource{}, nil
	})
	require.NoError(t, err)

	assert.True(t, r.HasSource("stub"))

	source, err := r.CreateSource("stub", config.NewBaseConfig("test", "source"))
	require.NoError(t, err)
	assert.NotNil(t, source)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()

	factory := func(cfg *config.BaseConfig) (core.Source, error) {
		return stubSource{}, nil
	}
	require.NoError(t, r.RegisterSource("stub", factory))
	assert.Error(t, r.RegisterSource("stub", factory))
}

func TestCreateUnknownConnector(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateSource("missing", config.NewBaseConfig("test", "source"))
	assert.Error(t, err)

	_, err = r.CreateDestination("missing", config.NewBaseConfig("test", "destination"))
	assert.Error(t, err)
}

func TestListIsSorted(t *testing.T) {
	r := NewRegistry()

	factory := func(cfg *config.BaseConfig) (core.Source, error) {
		return stubSource{}, nil
	}
	require.NoError(t, r.RegisterSource("zeta", factory))
	require.NoError(t, r.RegisterSource("alpha", factory))
	require.NoError(t, r.RegisterSource("mid", factory))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.ListSources())
}

func TestClear(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterSource("stub", func(cfg *config.BaseConfig) (core.Source, error) {
		return stubSource{}, nil
	}))
	r.Clear()
	assert.False(t, r.HasSource("stub"))
	assert.Empty(t, r.ListSources())
}
