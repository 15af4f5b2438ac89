package steps

// Rule describes when a step-dependent action applies to the current step list.
//
// Candidates is the set of steps the rule is about. The flags are evaluated in order:
//   - Group: the current list is exactly the candidate set
//   - Unique: exactly one candidate is current and it is the only step, or exactly
//     two candidates are current, they are the only steps, and RUN is one of them
//   - Others: at least one candidate is current
type Rule struct {
	Candidates []Step
	Unique     bool
	Group      bool
	Others     bool
}

// Allows evaluates the rule against the current step list.
func (r Rule) Allows(current List) bool {
	intersect := 0
	seen := make(map[Step]bool, len(r.Candidates))
	for _, c := range r.Candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if current.Contains(c) {
			intersect++
		}
	}

	switch {
	case r.Group && len(current) == len(seen) && intersect == len(seen):
		return true
	case r.Unique && len(current) == 1 && intersect == 1:
		return true
	case r.Unique && len(current) == 2 && intersect == 2 && current.Contains(Run):
		return true
	case r.Others && intersect != 0:
		return true
	}
	return false
}

// SimFileRule gates evaluation of the SIM_FILE parameter: a single step, a
// RUN-anchored pair, or the full chain.
var SimFileRule = Rule{
	Candidates: []Step{Pre, Run, Post},
	Unique:     true,
	Group:      true,
	Others:     false,
}
