// Package batch invokes the site helper scripts: the batch launcher, the queue
// and solver-version catalogs, the job-state helper and the global environment.
//
// Every invocation goes through a Runner. Helpers are never reimplemented; their
// output is parsed and any stderr text is treated as a failure.
package batch

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/logging"
)

// Command is one helper invocation: an executable and its argument vector.
type Command struct {
	Name string
	Args []string
}

// String renders the command for logs, quoting arguments containing spaces.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Runner executes helper commands and returns their stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner runs commands as subprocesses with a per-call timeout.
type ExecRunner struct {
	Timeout time.Duration
	logger  *logging.Logger
}

// NewExecRunner creates a runner bounding each call by timeout.
func NewExecRunner(timeout time.Duration, logger *logging.Logger) *ExecRunner {
	return &ExecRunner{Timeout: timeout, logger: logger}
}

// Run executes cmd. Non-empty stderr, a non-zero exit status or a timeout is
// reported as an external tool failure.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	r.logger.Info().Str("cmd", cmd.String()).Msg("Running command")

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	configureProcessGroup(c)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := stdout.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, failure.ExternalTool("command %s did not complete", cmd.Name).Wrap(ctxErr)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		r.logger.Error().Str("cmd", cmd.Name).Msg(msg)
		return out, failure.ExternalTool("command %s wrote to stderr: %s", cmd.Name, msg)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, failure.ExternalTool("command %s exited with status %d", cmd.Name, exitErr.ExitCode()).Wrap(err)
		}
		return out, failure.ExternalTool("failed to execute %s", cmd.Name).Wrap(err)
	}
	return out, nil
}
