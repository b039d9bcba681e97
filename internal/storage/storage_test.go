package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

const testTunables = `
boot:
  cost: 300
  params:
    rootfs: {type: categorical, values: [xfs, ext4, ext2], default: xfs}
kernel:
  cost: 1
  params:
    kernel_sched_latency_ns: {type: int, range: [0, 1000000000], default: 2000000}
`

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testSpec() ExperimentSpec {
	return ExperimentSpec{ID: "exp-1", Description: "test", RootEnv: "root", Target: "score", Direction: "min"}
}

func testGroups(t *testing.T) *tunables.Groups {
	t.Helper()
	tg, err := tunables.ParseGroups([]byte(testTunables))
	require.NoError(t, err)
	return tg
}

type backend struct {
	name string
	open func(t *testing.T, clock utils.Clock) Storage
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, clock utils.Clock) Storage {
			return NewMemory(WithClock(clock))
		}},
		{"sqlite", func(t *testing.T, clock utils.Clock) Storage {
			cfg := config.StorageConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "bench.sqlite")}
			s, err := OpenSQLite(context.Background(), cfg, WithClock(clock))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func TestTrialLifecycle(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := utils.NewManualClock(start)
			s := b.open(t, clock)

			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)
			assert.Equal(t, "exp-1", exp.ID())

			tg := testGroups(t)
			require.NoError(t, tg.Set("rootfs", "ext4"))
			tr, err := exp.NewTrial(ctx, tg, map[string]any{"repeat_i": 1, "vm_name": "vm-1"})
			require.NoError(t, err)
			assert.Equal(t, int64(1), tr.TrialID)
			assert.Equal(t, models.StatusPending, tr.Status)
			assert.Equal(t, tg.ConfigHash(), tr.ConfigHash)

			clock.Advance(time.Minute)
			require.NoError(t, exp.UpdateTrial(ctx, tr.TrialID, models.StatusRunning, clock.Now(), nil))
			clock.Advance(time.Minute)
			require.NoError(t, exp.UpdateTrial(ctx, tr.TrialID, models.StatusSucceeded, clock.Now(),
				map[string]float64{"score": 42.5, "throughput": 1000}))

			trials, err := exp.Trials(ctx)
			require.NoError(t, err)
			require.Len(t, trials, 1)
			got := trials[0]
			assert.Equal(t, models.StatusSucceeded, got.Status)
			assert.Equal(t, map[string]string{"rootfs": "ext4", "kernel_sched_latency_ns": "2000000"}, got.Config)
			assert.Equal(t, "vm-1", got.Params["vm_name"])
			assert.Equal(t, "1", got.Params["repeat_i"])
			assert.Equal(t, 42.5, got.Results["score"])
			assert.True(t, got.TsStart.Equal(start))
			require.NotNil(t, got.TsEnd)
			assert.True(t, got.TsEnd.Equal(start.Add(2*time.Minute)))
		})
	}
}

func TestConfigDeduplication(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, utils.NewManualClock(start))
			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)

			first, err := exp.NewTrial(ctx, testGroups(t), nil)
			require.NoError(t, err)
			second, err := exp.NewTrial(ctx, testGroups(t), nil)
			require.NoError(t, err)

			other := testGroups(t)
			require.NoError(t, other.Set("rootfs", "ext2"))
			third, err := exp.NewTrial(ctx, other, nil)
			require.NoError(t, err)

			assert.Equal(t, first.ConfigID, second.ConfigID)
			assert.NotEqual(t, first.ConfigID, third.ConfigID)
			assert.Equal(t, []int64{1, 2, 3}, []int64{first.TrialID, second.TrialID, third.TrialID})
		})
	}
}

func TestResultsOnlyForSucceeded(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, utils.NewManualClock(start))
			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)

			tr, err := exp.NewTrial(ctx, testGroups(t), nil)
			require.NoError(t, err)
			require.NoError(t, exp.UpdateTrial(ctx, tr.TrialID, models.StatusFailed, start, map[string]float64{"score": 1}))

			trials, err := exp.Trials(ctx)
			require.NoError(t, err)
			require.Len(t, trials, 1)
			assert.Equal(t, models.StatusFailed, trials[0].Status)
			assert.Empty(t, trials[0].Results)
		})
	}
}

func TestUpdateUnknownTrial(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, utils.NewManualClock(start))
			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)

			err = exp.UpdateTrial(ctx, 7, models.StatusSucceeded, start, nil)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoadHistory(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, utils.NewManualClock(start))
			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)

			add := func(rootfs string, status models.Status, results map[string]float64) {
				tg := testGroups(t)
				require.NoError(t, tg.Set("rootfs", rootfs))
				tr, err := exp.NewTrial(ctx, tg, nil)
				require.NoError(t, err)
				require.NoError(t, exp.UpdateTrial(ctx, tr.TrialID, status, start, results))
			}
			add("xfs", models.StatusSucceeded, map[string]float64{"score": 10})
			add("ext4", models.StatusFailed, nil)
			add("ext2", models.StatusSucceeded, map[string]float64{"latency": 3})
			add("ext4", models.StatusRunning, nil)

			configs, scores, statuses, err := exp.LoadHistory(ctx)
			require.NoError(t, err)
			require.Len(t, configs, 3, "running trials are not history")
			assert.Equal(t, []models.Status{models.StatusSucceeded, models.StatusFailed, models.StatusSucceeded}, statuses)
			assert.Equal(t, "xfs", configs[0]["rootfs"])
			require.NotNil(t, scores[0])
			assert.Equal(t, 10.0, *scores[0])
			assert.Nil(t, scores[1])
			assert.Nil(t, scores[2], "missing target metric")
		})
	}
}

func TestExperimentResume(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, utils.NewManualClock(start))

			exp, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)
			_, err = exp.NewTrial(ctx, testGroups(t), nil)
			require.NoError(t, err)

			resumed, err := s.Experiment(ctx, testSpec())
			require.NoError(t, err)
			tr, err := resumed.NewTrial(ctx, testGroups(t), nil)
			require.NoError(t, err)
			assert.Equal(t, int64(2), tr.TrialID)

			spec := testSpec()
			spec.Direction = "max"
			_, err = s.Experiment(ctx, spec)
			require.ErrorIs(t, err, ErrObjectiveMismatch)

			got, err := s.GetExperiment(ctx, "exp-1")
			require.NoError(t, err)
			assert.Equal(t, "score", got.Info().Target)

			_, err = s.GetExperiment(ctx, "nope")
			require.ErrorIs(t, err, ErrNotFound)

			list, err := s.ListExperiments(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "min", list[0].Direction)
			assert.True(t, list[0].CreatedAt.Equal(start))
		})
	}
}

func TestInvalidExperimentSpec(t *testing.T) {
	s := NewMemory()
	_, err := s.Experiment(context.Background(), ExperimentSpec{ID: "bad id!", Target: "score", Direction: "min"})
	require.Error(t, err)
	_, err = s.Experiment(context.Background(), ExperimentSpec{ID: "ok", Target: "score", Direction: "up"})
	require.Error(t, err)
}

func TestNewStorage(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	_, err = New(context.Background(), config.StorageConfig{Type: "postgres"})
	require.Error(t, err)
}
