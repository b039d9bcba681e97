package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// MemoryStorage keeps experiments in process memory.
type MemoryStorage struct {
	opts options

	mu          sync.RWMutex
	experiments map[string]*memoryExperiment
	configs     map[string]int64 // config hash -> config id
}

// NewMemory creates an empty in-memory storage.
func NewMemory(opts ...Option) *MemoryStorage {
	return &MemoryStorage{
		opts:        buildOptions(opts),
		experiments: make(map[string]*memoryExperiment),
		configs:     make(map[string]int64),
	}
}

func (s *MemoryStorage) Experiment(ctx context.Context, spec ExperimentSpec) (Experiment, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.experiments[spec.ID]; ok {
		if err := spec.checkObjective(exp.info); err != nil {
			return nil, err
		}
		return exp, nil
	}
	exp := &memoryExperiment{
		store: s,
		info: models.Experiment{
			ID:          spec.ID,
			Description: spec.Description,
			RootEnv:     spec.RootEnv,
			Target:      spec.Target,
			Direction:   spec.Direction,
			CreatedAt:   s.opts.clock.Now(),
		},
	}
	s.experiments[spec.ID] = exp
	return exp, nil
}

func (s *MemoryStorage) GetExperiment(ctx context.Context, id string) (Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return exp, nil
}

func (s *MemoryStorage) ListExperiments(ctx context.Context) ([]models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		out = append(out, exp.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// configID returns the id of a config hash, allocating one for new configs.
func (s *MemoryStorage) configID(hash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.configs[hash]; ok {
		return id
	}
	id := int64(len(s.configs) + 1)
	s.configs[hash] = id
	return id
}

type memoryExperiment struct {
	store *MemoryStorage
	info  models.Experiment

	mu     sync.RWMutex
	trials []*models.Trial
}

func (e *memoryExperiment) ID() string              { return e.info.ID }
func (e *memoryExperiment) Info() models.Experiment { return e.info }

func (e *memoryExperiment) NewTrial(ctx context.Context, t *tunables.Groups, params map[string]any) (*models.Trial, error) {
	if t == nil {
		return nil, fmt.Errorf("experiment %s: tunables are required", e.info.ID)
	}
	records := t.ParamRecords()
	hash := tunables.HashRecords(records)
	configID := e.store.configID(hash)

	e.mu.Lock()
	defer e.mu.Unlock()

	tr := &models.Trial{
		ExperimentID: e.info.ID,
		TrialID:      int64(len(e.trials) + 1),
		ConfigID:     configID,
		ConfigHash:   hash,
		Status:       models.StatusPending,
		TsStart:      e.store.opts.clock.Now(),
		Config:       configValues(records),
		Params:       formatParams(params),
	}
	e.trials = append(e.trials, tr)
	out := copyTrial(tr)
	return &out, nil
}

func (e *memoryExperiment) UpdateTrial(ctx context.Context, trialID int64, status models.Status, ts time.Time, results map[string]float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if trialID < 1 || trialID > int64(len(e.trials)) {
		return fmt.Errorf("trial %s/%d: %w", e.info.ID, trialID, ErrNotFound)
	}
	tr := e.trials[trialID-1]
	tr.Status = status
	if status.IsCompleted() {
		end := ts.UTC()
		tr.TsEnd = &end
	}
	if status.IsSucceeded() && len(results) > 0 {
		tr.Results = maps.Clone(results)
	}
	return nil
}

func (e *memoryExperiment) Trials(ctx context.Context) ([]models.Trial, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Trial, len(e.trials))
	for i, tr := range e.trials {
		out[i] = copyTrial(tr)
	}
	return out, nil
}

func (e *memoryExperiment) LoadHistory(ctx context.Context) ([]map[string]any, []*float64, []models.Status, error) {
	trials, err := e.Trials(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	configs, scores, statuses := historyFromTrials(trials, e.info.Target)
	return configs, scores, statuses, nil
}

func copyTrial(tr *models.Trial) models.Trial {
	out := *tr
	if tr.TsEnd != nil {
		end := *tr.TsEnd
		out.TsEnd = &end
	}
	out.Config = maps.Clone(tr.Config)
	out.Params = maps.Clone(tr.Params)
	out.Results = maps.Clone(tr.Results)
	return out
}
