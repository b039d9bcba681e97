package services

import (
	"context"
	"time"

	"github.com/kkanellis/MLOS/pkg/models"
)

// ExecOptions controls how a script is run.
type ExecOptions struct {
	// Cwd is the working directory of every command.
	Cwd string
	// Shell runs each line as `shell -c line`. Defaults to /bin/sh.
	Shell string
	// Env is exported to the commands on top of the service environment.
	Env map[string]string
	// Timeout bounds the whole script. Zero means no limit.
	Timeout time.Duration
}

// ExecResult is the outcome of a script.
type ExecResult struct {
	Status   models.Status
	ExitCode int
	Stdout   string
	Stderr   string
}

// RemoteExec runs scripts on the host under benchmark.
type RemoteExec interface {
	// Exec runs the lines of script in order and stops at the first
	// failure. A failing command is reported through the result status;
	// the error is reserved for problems starting the commands.
	Exec(ctx context.Context, script []string, opts ExecOptions) (ExecResult, error)
}
