package environment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kkanellis/MLOS/internal/services"
	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// ScriptEnv runs setup, run and teardown scripts through a RemoteExec
// service. The run script prints its results as metric,value CSV lines.
type ScriptEnv struct {
	*base
	exec     services.RemoteExec
	setupCmd []string
	runCmd   []string
	teardown []string
	envNames []string
	opts     services.ExecOptions
}

// NewScriptEnv creates a script environment.
func NewScriptEnv(cfg config.EnvironmentConfig, registry *tunables.Groups, globals map[string]string, exec services.RemoteExec) (*ScriptEnv, error) {
	if cfg.Script == nil || len(cfg.Script.Run) == 0 {
		return nil, fmt.Errorf("environment %s: script.run is required", cfg.Name)
	}
	if exec == nil {
		return nil, fmt.Errorf("environment %s: no exec service", cfg.Name)
	}
	b, err := newBase(cfg, registry, globals)
	if err != nil {
		return nil, err
	}
	sc := cfg.Script
	opts := services.ExecOptions{Cwd: sc.Cwd, Shell: sc.Shell}
	if sc.Timeout != "" {
		d, err := time.ParseDuration(sc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("environment %s: invalid timeout %q: %w", cfg.Name, sc.Timeout, err)
		}
		opts.Timeout = d
	}
	return &ScriptEnv{
		base:     b,
		exec:     exec,
		setupCmd: sc.Setup,
		runCmd:   sc.Run,
		teardown: sc.Teardown,
		envNames: sc.ShellEnvParams,
		opts:     opts,
	}, nil
}

// Setup runs the setup script when the environment tunables changed since
// the last successful setup.
func (e *ScriptEnv) Setup(ctx context.Context, t *tunables.Groups) (bool, error) {
	updated, err := e.setup(t)
	if err != nil {
		return false, err
	}
	if len(e.setupCmd) == 0 || (!updated && e.ready) {
		e.ready = true
		return true, nil
	}

	logger.Info("set up", "environment", e.name)
	res, err := e.exec.Exec(ctx, e.setupCmd, e.execOptions())
	if err != nil {
		e.ready = false
		return false, fmt.Errorf("environment %s setup: %w", e.name, err)
	}
	e.ready = res.Status.IsSucceeded()
	logger.Info("set up complete", "environment", e.name, "status", res.Status.String())
	return e.ready, nil
}

func (e *ScriptEnv) Run(ctx context.Context) (models.Status, map[string]float64, error) {
	if !e.ready {
		return models.StatusPending, nil, nil
	}
	logger.Info("run benchmark", "environment", e.name)
	res, err := e.exec.Exec(ctx, e.runCmd, e.execOptions())
	if err != nil {
		return models.StatusFailed, nil, fmt.Errorf("environment %s run: %w", e.name, err)
	}
	if !res.Status.IsSucceeded() {
		return res.Status, nil, nil
	}
	results, err := ParseResults(strings.NewReader(res.Stdout))
	if err != nil {
		return models.StatusFailed, nil, fmt.Errorf("environment %s: %w", e.name, err)
	}
	return models.StatusSucceeded, results, nil
}

func (e *ScriptEnv) Teardown(ctx context.Context) error {
	e.ready = false
	if len(e.teardown) == 0 {
		return nil
	}
	logger.Info("tear down", "environment", e.name)
	res, err := e.exec.Exec(ctx, e.teardown, e.execOptions())
	if err != nil {
		return fmt.Errorf("environment %s teardown: %w", e.name, err)
	}
	if !res.Status.IsSucceeded() {
		return fmt.Errorf("environment %s teardown: %s", e.name, res.Status)
	}
	return nil
}

// execOptions exports the selected params (all of them when none are
// selected) as environment variables.
func (e *ScriptEnv) execOptions() services.ExecOptions {
	opts := e.opts
	params := e.Params()
	opts.Env = make(map[string]string, len(params))
	if len(e.envNames) == 0 {
		for k, v := range params {
			opts.Env[k] = tunables.FormatValue(v)
		}
		return opts
	}
	for _, name := range e.envNames {
		if v, ok := params[name]; ok {
			opts.Env[name] = tunables.FormatValue(v)
		}
	}
	return opts
}

// ParseResults reads metric,value CSV records. A leading header row and
// blank lines are skipped.
func ParseResults(r io.Reader) (map[string]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	results := make(map[string]float64)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid results: %w", err)
		}
		name := strings.TrimSpace(record[0])
		raw := strings.TrimSpace(record[1])
		if line == 1 && name == "metric" && raw == "value" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid results: metric %s: %w", name, err)
		}
		results[name] = v
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("invalid results: no metrics reported")
	}
	return results, nil
}
