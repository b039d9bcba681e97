package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
)

const defaultShell = "/bin/sh"

// LocalExecService runs scripts on the local host.
type LocalExecService struct {
	// BaseEnv is added to every command. Defaults to the process environment.
	BaseEnv []string
}

// NewLocalExecService creates a service inheriting the process environment.
func NewLocalExecService() *LocalExecService {
	return &LocalExecService{BaseEnv: os.Environ()}
}

func (s *LocalExecService) Exec(ctx context.Context, script []string, opts ExecOptions) (ExecResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	shell := opts.Shell
	if shell == "" {
		shell = defaultShell
	}
	env := append([]string(nil), s.BaseEnv...)
	env = append(env, envList(opts.Env)...)

	var stdout, stderr bytes.Buffer
	for i, line := range script {
		cmd := exec.CommandContext(ctx, shell, "-c", line)
		cmd.Dir = opts.Cwd
		cmd.Env = env
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		logger.Debug("exec", "line", i, "command", line, "cwd", opts.Cwd)
		err := cmd.Run()
		if err == nil {
			continue
		}

		res := ExecResult{Status: models.StatusFailed, ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Status = models.StatusTimedOut
		case errors.Is(ctx.Err(), context.Canceled):
			res.Status = models.StatusCanceled
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Warn("command failed", "command", line, "exit_code", res.ExitCode, "status", res.Status.String())
			return res, nil
		}
		if res.Status != models.StatusFailed {
			return res, nil
		}
		return res, fmt.Errorf("failed to run %q: %w", line, err)
	}
	return ExecResult{Status: models.StatusSucceeded, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// envList renders env as sorted KEY=value pairs.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
