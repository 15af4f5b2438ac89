// Package steps defines the PRE, RUN and POST pipeline stages, their canonical
// order, and the rule evaluator used to gate step-dependent behaviour.
package steps

import (
	"fmt"
	"strings"
)

// Step is one stage of the simulation pipeline.
type Step string

const (
	Pre  Step = "PRE"
	Run  Step = "RUN"
	Post Step = "POST"
)

// allToken expands to every step.
const allToken = "ALL"

// Canonical is the fixed pipeline order.
var Canonical = List{Pre, Run, Post}

func (s Step) String() string {
	return string(s)
}

// Index returns the position of s in the canonical order, or -1.
func (s Step) Index() int {
	switch s {
	case Pre:
		return 0
	case Run:
		return 1
	case Post:
		return 2
	}
	return -1
}

// Previous returns the step feeding s, and false for PRE.
func (s Step) Previous() (Step, bool) {
	switch s {
	case Run:
		return Pre, true
	case Post:
		return Run, true
	}
	return "", false
}

// Macro returns the per-step authored macro name used by the solver.
func (s Step) Macro() string {
	switch s {
	case Pre:
		return "Pre_processing.java"
	case Run:
		return "Run_simulation.java"
	case Post:
		return "Post_processing.java"
	}
	return ""
}

// Parse converts a single token to a Step.
func Parse(token string) (Step, error) {
	switch s := Step(strings.ToUpper(strings.TrimSpace(token))); s {
	case Pre, Run, Post:
		return s, nil
	}
	return "", fmt.Errorf("unknown step %q", token)
}

// List is an ordered set of steps. Lists built by ParseList or Canonicalize
// are always in canonical order without duplicates.
type List []Step

// ParseList parses a space separated step list such as "RUN POST" or "ALL".
// Tokens are case-insensitive; duplicates collapse.
func ParseList(raw string) (List, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty step list")
	}

	var parsed []Step
	for _, f := range fields {
		if strings.EqualFold(f, allToken) {
			parsed = append(parsed, Canonical...)
			continue
		}
		s, err := Parse(f)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, s)
	}
	return Canonicalize(parsed), nil
}

// Canonicalize sorts steps into PRE, RUN, POST order and drops duplicates.
func Canonicalize(in []Step) List {
	var slots [3]bool
	for _, s := range in {
		if i := s.Index(); i >= 0 {
			slots[i] = true
		}
	}
	out := make(List, 0, len(slots))
	for i, present := range slots {
		if present {
			out = append(out, Canonical[i])
		}
	}
	return out
}

// First returns the first step, or "" for an empty list.
func (l List) First() Step {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// Contains reports whether s is in the list.
func (l List) Contains(s Step) bool {
	for _, x := range l {
		if x == s {
			return true
		}
	}
	return false
}

// IsFirst reports whether s is the first step of the list.
func (l List) IsFirst(s Step) bool {
	return len(l) > 0 && l[0] == s
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}
