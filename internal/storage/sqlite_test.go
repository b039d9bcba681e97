package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkanellis/MLOS/pkg/config"
)

func TestSQLiteSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, config.StorageConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "v.sqlite")})
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Migrating an up-to-date database is a no-op.
	require.NoError(t, s.Migrate(ctx))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "reopen.sqlite"), CacheSize: 2}

	s, err := OpenSQLite(ctx, cfg)
	require.NoError(t, err)
	exp, err := s.Experiment(ctx, testSpec())
	require.NoError(t, err)
	tr, err := exp.NewTrial(ctx, testGroups(t), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()
	exp, err = s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	again, err := exp.NewTrial(ctx, testGroups(t), nil)
	require.NoError(t, err)
	assert.Equal(t, tr.ConfigID, again.ConfigID, "config looked up by hash without the cache")
	assert.Equal(t, int64(2), again.TrialID)
}

func TestSQLiteInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, config.StorageConfig{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	exp, err := s.Experiment(ctx, testSpec())
	require.NoError(t, err)
	_, err = exp.NewTrial(ctx, testGroups(t), map[string]any{"x": 1.5})
	require.NoError(t, err)

	trials, err := exp.Trials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "1.5", trials[0].Params["x"])
}
