package appsync

import "sort"

// Plan is the work needed to match installed apps to an allow-list.
type Plan struct {
	ToInstall []string `json:"toInstall"`
	ToRemove  []string `json:"toRemove"`
}

// Empty reports whether there is nothing to do.
func (p Plan) Empty() bool {
	return len(p.ToInstall) == 0 && len(p.ToRemove) == 0
}

// Total is the number of operations in the plan.
func (p Plan) Total() int {
	return len(p.ToInstall) + len(p.ToRemove)
}

// Diff computes toInstall = allowed - installed and
// toRemove = installed - allowed, each sorted without duplicates.
func Diff(allowed, installed []string) Plan {
	allow := toSet(allowed)
	have := toSet(installed)

	plan := Plan{ToInstall: []string{}, ToRemove: []string{}}
	for id := range allow {
		if !have[id] {
			plan.ToInstall = append(plan.ToInstall, id)
		}
	}
	for id := range have {
		if !allow[id] {
			plan.ToRemove = append(plan.ToRemove, id)
		}
	}
	sort.Strings(plan.ToInstall)
	sort.Strings(plan.ToRemove)
	return plan
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
