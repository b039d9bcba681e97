package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultCacheSize = 1024

// SQLiteStorage persists experiments in a sqlite database.
type SQLiteStorage struct {
	db      *sql.DB
	path    string
	opts    options
	configs *lru.Cache[string, int64] // config hash -> config id
	backoff utils.Backoff
	retries int
}

// OpenSQLite opens (creating if needed) the database at cfg.Path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*SQLiteStorage, error) {
	s, err := openSQLite(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func openSQLite(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*SQLiteStorage, error) {
	path := cfg.Path
	if path == "" {
		path = "mlos_bench.sqlite"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create config cache: %w", err)
	}

	retries := cfg.BusyRetries
	if retries <= 0 {
		retries = 5
	}
	baseMs := cfg.BusyBaseMs
	if baseMs <= 0 {
		baseMs = 20
	}
	backoff, err := utils.ParseBackoff(cfg.BusyBackoff, time.Duration(baseMs)*time.Millisecond, 0)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{
		db:      db,
		path:    path,
		opts:    buildOptions(opts),
		configs: cache,
		backoff: backoff,
		retries: retries,
	}, nil
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// Closing m would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	logger.Debug("sqlite schema ready", "path", s.path, "version", version)
	return nil
}

// SchemaVersion returns the applied migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *SQLiteStorage) SchemaVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *SQLiteStorage) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger on top of pkg/logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (migrateLogger) Verbose() bool {
	return false
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withTx runs fn in a transaction, retrying when the database is busy.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return utils.Retry(ctx, s.backoff, s.retries, isBusy, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *SQLiteStorage) Experiment(ctx context.Context, spec ExperimentSpec) (Experiment, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	var info models.Experiment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadExperiment(ctx, tx, spec.ID)
		switch {
		case err == nil:
			if err := spec.checkObjective(existing); err != nil {
				return err
			}
			info = existing
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}

		info = models.Experiment{
			ID:          spec.ID,
			Description: spec.Description,
			RootEnv:     spec.RootEnv,
			Target:      spec.Target,
			Direction:   spec.Direction,
			CreatedAt:   s.opts.clock.Now(),
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO experiment (exp_id, description, root_env, created_at) VALUES (?, ?, ?, ?)`,
			info.ID, info.Description, info.RootEnv, formatTime(info.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert experiment %s: %w", info.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO objectives (exp_id, optimization_target, optimization_direction) VALUES (?, ?, ?)`,
			info.ID, info.Target, info.Direction); err != nil {
			return fmt.Errorf("failed to insert objective of %s: %w", info.ID, err)
		}
		logger.Info("created experiment", "experiment_id", info.ID, "target", info.Target, "direction", info.Direction)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sqliteExperiment{store: s, info: info}, nil
}

func (s *SQLiteStorage) GetExperiment(ctx context.Context, id string) (Experiment, error) {
	info, err := loadExperiment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &sqliteExperiment{store: s, info: info}, nil
}

func (s *SQLiteStorage) ListExperiments(ctx context.Context) ([]models.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, experimentQuery+` ORDER BY e.exp_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []models.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// queryer is the part of *sql.DB and *sql.Tx used by read helpers.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const experimentQuery = `
SELECT e.exp_id, COALESCE(e.description, ''), COALESCE(e.root_env, ''), e.created_at,
       o.optimization_target, o.optimization_direction
FROM experiment e JOIN objectives o ON o.exp_id = e.exp_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (models.Experiment, error) {
	var (
		exp     models.Experiment
		created string
	)
	if err := row.Scan(&exp.ID, &exp.Description, &exp.RootEnv, &created, &exp.Target, &exp.Direction); err != nil {
		return exp, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return exp, fmt.Errorf("experiment %s: bad created_at %q: %w", exp.ID, created, err)
	}
	exp.CreatedAt = ts
	return exp, nil
}

func loadExperiment(ctx context.Context, q queryer, id string) (models.Experiment, error) {
	exp, err := scanExperiment(q.QueryRowContext(ctx, experimentQuery+` WHERE e.exp_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return exp, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return exp, fmt.Errorf("failed to load experiment %s: %w", id, err)
	}
	return exp, nil
}

type sqliteExperiment struct {
	store *SQLiteStorage
	info  models.Experiment
}

func (e *sqliteExperiment) ID() string              { return e.info.ID }
func (e *sqliteExperiment) Info() models.Experiment { return e.info }

func (e *sqliteExperiment) NewTrial(ctx context.Context, t *tunables.Groups, params map[string]any) (*models.Trial, error) {
	if t == nil {
		return nil, fmt.Errorf("experiment %s: tunables are required", e.info.ID)
	}
	records := t.ParamRecords()
	hash := tunables.HashRecords(records)
	strParams := formatParams(params)
	now := e.store.opts.clock.Now()

	var tr *models.Trial
	err := e.store.withTx(ctx, func(tx *sql.Tx) error {
		configID, err := e.store.configID(ctx, tx, hash, records)
		if err != nil {
			return err
		}
		var trialID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(trial_id), 0) + 1 FROM trial WHERE exp_id = ?`, e.info.ID).Scan(&trialID); err != nil {
			return fmt.Errorf("failed to allocate trial id: %w", err)
		}
		status := models.StatusPending.String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial (exp_id, trial_id, config_id, ts_start, status) VALUES (?, ?, ?, ?, ?)`,
			e.info.ID, trialID, configID, formatTime(now), status); err != nil {
			return fmt.Errorf("failed to insert trial: %w", err)
		}
		for name, value := range strParams {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trial_param (exp_id, trial_id, param_id, param_value) VALUES (?, ?, ?, ?)`,
				e.info.ID, trialID, name, value); err != nil {
				return fmt.Errorf("failed to insert trial param %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial_status (exp_id, trial_id, ts, status) VALUES (?, ?, ?, ?)`,
			e.info.ID, trialID, formatTime(now), status); err != nil {
			return fmt.Errorf("failed to insert trial status: %w", err)
		}

		tr = &models.Trial{
			ExperimentID: e.info.ID,
			TrialID:      trialID,
			ConfigID:     configID,
			ConfigHash:   hash,
			Status:       models.StatusPending,
			TsStart:      now,
			Config:       configValues(records),
			Params:       strParams,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.store.configs.Add(hash, tr.ConfigID)
	return tr, nil
}

// configID returns the id of the config with the given hash, inserting it
// with its parameters when it is new.
func (s *SQLiteStorage) configID(ctx context.Context, tx *sql.Tx, hash string, records []tunables.ParamRecord) (int64, error) {
	if id, ok := s.configs.Get(hash); ok {
		return id, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT config_id FROM config WHERE config_hash = ?`, hash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up config %s: %w", hash, err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO config (config_hash) VALUES (?)`, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to insert config: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, err
	}
	for _, r := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO config_param (config_id, param_id, param_value) VALUES (?, ?, ?)`,
			id, r.Name, r.Value); err != nil {
			return 0, fmt.Errorf("failed to insert config param %s: %w", r.Name, err)
		}
	}
	return id, nil
}

func (e *sqliteExperiment) UpdateTrial(ctx context.Context, trialID int64, status models.Status, ts time.Time, results map[string]float64) error {
	return e.store.withTx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if status.IsCompleted() {
			res, err = tx.ExecContext(ctx, `UPDATE trial SET status = ?, ts_end = ? WHERE exp_id = ? AND trial_id = ?`,
				status.String(), formatTime(ts), e.info.ID, trialID)
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE trial SET status = ? WHERE exp_id = ? AND trial_id = ?`,
				status.String(), e.info.ID, trialID)
		}
		if err != nil {
			return fmt.Errorf("failed to update trial %s/%d: %w", e.info.ID, trialID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("trial %s/%d: %w", e.info.ID, trialID, ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial_status (exp_id, trial_id, ts, status) VALUES (?, ?, ?, ?)`,
			e.info.ID, trialID, formatTime(ts), status.String()); err != nil {
			return fmt.Errorf("failed to insert trial status: %w", err)
		}
		if !status.IsSucceeded() {
			return nil
		}
		for metric, value := range results {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO trial_result (exp_id, trial_id, metric_id, metric_value) VALUES (?, ?, ?, ?)`,
				e.info.ID, trialID, metric, value); err != nil {
				return fmt.Errorf("failed to insert result %s: %w", metric, err)
			}
		}
		return nil
	})
}

func (e *sqliteExperiment) Trials(ctx context.Context) ([]models.Trial, error) {
	db := e.store.db
	rows, err := db.QueryContext(ctx, `
SELECT t.trial_id, t.config_id, c.config_hash, t.ts_start, COALESCE(t.ts_end, ''), t.status
FROM trial t JOIN config c ON c.config_id = t.config_id
WHERE t.exp_id = ? ORDER BY t.trial_id`, e.info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials of %s: %w", e.info.ID, err)
	}
	var (
		trials []models.Trial
		index  = make(map[int64]int)
	)
	for rows.Next() {
		var (
			tr            models.Trial
			start, end, s string
		)
		if err := rows.Scan(&tr.TrialID, &tr.ConfigID, &tr.ConfigHash, &start, &end, &s); err != nil {
			rows.Close()
			return nil, err
		}
		tr.ExperimentID = e.info.ID
		if tr.TsStart, err = parseTime(start); err != nil {
			rows.Close()
			return nil, fmt.Errorf("trial %d: bad ts_start %q: %w", tr.TrialID, start, err)
		}
		if end != "" {
			ts, err := parseTime(end)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("trial %d: bad ts_end %q: %w", tr.TrialID, end, err)
			}
			tr.TsEnd = &ts
		}
		if tr.Status, err = models.ParseStatus(s); err != nil {
			rows.Close()
			return nil, fmt.Errorf("trial %d: %w", tr.TrialID, err)
		}
		tr.Config = make(map[string]string)
		index[tr.TrialID] = len(trials)
		trials = append(trials, tr)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Rows of trials created after the first query are skipped.
	trial := func(id int64) *models.Trial {
		if i, ok := index[id]; ok {
			return &trials[i]
		}
		return nil
	}

	err = e.scanPairs(ctx, `
SELECT t.trial_id, cp.param_id, COALESCE(cp.param_value, '')
FROM trial t JOIN config_param cp ON cp.config_id = t.config_id
WHERE t.exp_id = ?`, func(id int64, k, v string) {
		if tr := trial(id); tr != nil {
			tr.Config[k] = v
		}
	})
	if err != nil {
		return nil, err
	}
	err = e.scanPairs(ctx, `
SELECT trial_id, param_id, COALESCE(param_value, '') FROM trial_param WHERE exp_id = ?`,
		func(id int64, k, v string) {
			tr := trial(id)
			if tr == nil {
				return
			}
			if tr.Params == nil {
				tr.Params = make(map[string]string)
			}
			tr.Params[k] = v
		})
	if err != nil {
		return nil, err
	}

	results, err := db.QueryContext(ctx,
		`SELECT trial_id, metric_id, metric_value FROM trial_result WHERE exp_id = ?`, e.info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of %s: %w", e.info.ID, err)
	}
	defer results.Close()
	for results.Next() {
		var (
			id     int64
			metric string
			value  sql.NullFloat64
		)
		if err := results.Scan(&id, &metric, &value); err != nil {
			return nil, err
		}
		tr := trial(id)
		if tr == nil || !value.Valid {
			continue
		}
		if tr.Results == nil {
			tr.Results = make(map[string]float64)
		}
		tr.Results[metric] = value.Float64
	}
	return trials, results.Err()
}

// scanPairs runs a (trial_id, key, value) query and feeds every row to fn.
func (e *sqliteExperiment) scanPairs(ctx context.Context, query string, fn func(id int64, k, v string)) error {
	rows, err := e.store.db.QueryContext(ctx, query, e.info.ID)
	if err != nil {
		return fmt.Errorf("failed to query trial details of %s: %w", e.info.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			k, v string
		)
		if err := rows.Scan(&id, &k, &v); err != nil {
			return err
		}
		fn(id, k, v)
	}
	return rows.Err()
}

func (e *sqliteExperiment) LoadHistory(ctx context.Context) ([]map[string]any, []*float64, []models.Status, error) {
	trials, err := e.Trials(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	configs, scores, statuses := historyFromTrials(trials, e.info.Target)
	return configs, scores, statuses, nil
}
