package batch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aerox/simflow/internal/failure"
	"github.com/aerox/simflow/internal/steps"
)

var numbers = regexp.MustCompile(`^[0-9]+$`)

// JobState wraps the job-state helper script, which owns the .JOB_STEPS marker,
// scheduler registration and the sim-state symlinks between step folders.
type JobState struct {
	Runner Runner
	Script string
}

func (h *JobState) command(args ...string) Command {
	return Command{Name: "bash", Args: append([]string{h.Script}, args...)}
}

// CanLink asks whether prevFolder holds linkable sim state (`-f`). Output
// containing "None" means it does not.
func (h *JobState) CanLink(ctx context.Context, prevFolder string) (bool, error) {
	out, err := h.Runner.Run(ctx, h.command("-f", prevFolder))
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "None"), nil
}

// CreateSymlink links the predecessor's sim state into the next step folder (`-s`).
func (h *JobState) CreateSymlink(ctx context.Context, prevFolder string) (string, error) {
	out, err := h.Runner.Run(ctx, h.command("-s", prevFolder))
	if err != nil {
		return out, err
	}
	if strings.Contains(out, "ERROR") {
		return out, failure.ExternalTool("cannot create symlink for sim file: %s", strings.TrimSpace(out))
	}
	return out, nil
}

// HoldJobID returns the id of the still-running predecessor job, if any (`-w`).
// "STOP" in the output means the predecessor failed. The id is the second
// output line when it is numeric.
func (h *JobState) HoldJobID(ctx context.Context, runDir string, prev steps.Step) (string, error) {
	out, err := h.Runner.Run(ctx, h.command("-w", runDir, prev.String()))
	if err != nil {
		return "", err
	}
	if strings.Contains(out, "STOP") {
		return "", failure.ExternalTool("previous job error")
	}
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		return "", nil
	}
	id := strings.TrimSpace(lines[1])
	if !numbers.MatchString(id) {
		return "", nil
	}
	return id, nil
}

// Registration maps a step folder name to its scheduler job id.
type Registration struct {
	Step  steps.Step
	JobID string
}

// Register records step to job id mappings for runDir (`--add`).
func (h *JobState) Register(ctx context.Context, runDir string, regs []Registration) error {
	args := []string{"--add", runDir}
	for _, r := range regs {
		args = append(args, fmt.Sprintf("%s,%s", r.Step, r.JobID))
	}
	_, err := h.Runner.Run(ctx, h.command(args...))
	return err
}
