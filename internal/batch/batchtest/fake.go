// Package batchtest provides a scripted batch.Runner for tests.
package batchtest

import (
	"context"
	"strings"
	"sync"

	"github.com/aerox/simflow/internal/batch"
)

// Rule answers commands whose rendered form contains Match.
type Rule struct {
	Match  string
	Output string
	Err    error
	// Do runs before the rule answers, e.g. to create files a helper would create.
	Do func(cmd batch.Command)
}

// Runner is a fake batch.Runner. The first matching rule answers; commands
// matching no rule succeed with empty output. Every call is recorded.
type Runner struct {
	mu    sync.Mutex
	Rules []Rule
	calls []batch.Command
}

// NewRunner creates a fake runner with the given rules.
func NewRunner(rules ...Rule) *Runner {
	return &Runner{Rules: rules}
}

// Run implements batch.Runner.
func (r *Runner) Run(ctx context.Context, cmd batch.Command) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	rules := r.Rules
	r.mu.Unlock()

	rendered := cmd.String()
	for _, rule := range rules {
		if strings.Contains(rendered, rule.Match) {
			if rule.Do != nil {
				rule.Do(cmd)
			}
			return rule.Output, rule.Err
		}
	}
	return "", nil
}

// Calls returns the recorded commands.
func (r *Runner) Calls() []batch.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]batch.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsMatching returns the recorded commands whose rendered form contains s.
func (r *Runner) CallsMatching(s string) []batch.Command {
	var out []batch.Command
	for _, c := range r.Calls() {
		if strings.Contains(c.String(), s) {
			out = append(out, c)
		}
	}
	return out
}
