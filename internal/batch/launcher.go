package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/aerox/simflow/internal/failure"
)

// Submission holds the launcher parameters for one step.
type Submission struct {
	Software  string
	Version   string
	Sim       string
	Name      string
	Queue     string
	Walltime  string
	DependsOn string // previous job id, empty for none
	OutputDir string
	Macro     string
	Mail      bool
}

// BuildCommand renders the launcher invocation:
//
//	<launcher> -s <software> -v <version> -n 1 -i <sim> -j <name> -q <queue>
//	  -w <walltime> [-d <prevId>] -e NOZIP -o <path> -os NONE -p <macro> -- mail=<bool>
func BuildCommand(launcher string, s Submission) Command {
	args := []string{
		"-s", s.Software,
		"-v", s.Version,
		"-n", "1",
		"-i", s.Sim,
		"-j", s.Name,
		"-q", s.Queue,
		"-w", s.Walltime,
	}
	if s.DependsOn != "" {
		args = append(args, "-d", s.DependsOn)
	}
	args = append(args,
		"-e", "NOZIP",
		"-o", s.OutputDir,
		"-os", "NONE",
		"-p", s.Macro,
		"--", fmt.Sprintf("mail=%t", s.Mail),
	)
	return Command{Name: launcher, Args: args}
}

// ParseJobID extracts the id following the case-insensitive "jobid:" token.
func ParseJobID(output string) (string, error) {
	idx := strings.Index(strings.ToLower(output), "jobid")
	if idx < 0 {
		return "", failure.ExternalTool("no job id in launcher output: %s", strings.TrimSpace(output))
	}
	_, rest, ok := strings.Cut(output[idx:], ":")
	if !ok {
		return "", failure.ExternalTool("malformed job id in launcher output: %s", strings.TrimSpace(output))
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", failure.ExternalTool("empty job id in launcher output: %s", strings.TrimSpace(output))
	}
	return fields[0], nil
}

// Launcher submits steps through the site batch launcher.
type Launcher struct {
	Runner Runner
	Path   string
}

// Submit runs the launcher for s and returns the scheduler job id.
func (l *Launcher) Submit(ctx context.Context, s Submission) (string, error) {
	out, err := l.Runner.Run(ctx, BuildCommand(l.Path, s))
	if err != nil {
		return "", err
	}
	if strings.Contains(out, "ERROR") {
		return "", failure.ExternalTool("launcher rejected job %s: %s", s.Name, strings.TrimSpace(out))
	}
	return ParseJobID(out)
}
