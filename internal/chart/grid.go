package chart

import (
	"cmp"
	"slices"

	"devopsdash/internal/core"
)

// StateCount is a per-state tally for grid headers.
type StateCount struct {
	State string `json:"state"`
	Color string `json:"color,omitempty"`
	Count int    `json:"count"`
}

// ItemsByState groups work items by System.State in first-seen order.
func ItemsByState(items []core.WorkItem) []Group[core.WorkItem] {
	return GroupByKey(items, func(w core.WorkItem) (string, bool) {
		return w.State, w.State != ""
	})
}

// CountByState tallies items following the rank order of states. States with
// no items are skipped; item states missing from the list come last.
func CountByState(items []core.WorkItem, states []core.State) []StateCount {
	groups := ItemsByState(items)
	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		counts[g.Key] = len(g.Items)
	}

	out := make([]StateCount, 0, len(groups))
	for _, s := range states {
		if n, ok := counts[s.Name]; ok {
			out = append(out, StateCount{State: s.Name, Color: s.Color, Count: n})
			delete(counts, s.Name)
		}
	}
	for _, g := range groups {
		if n, ok := counts[g.Key]; ok {
			out = append(out, StateCount{State: g.Key, Count: n})
		}
	}
	return out
}

// SortByStateRank orders items by their state's rank, then by fetch order.
// Unknown states sort after every known one.
func SortByStateRank(items []core.WorkItem, states []core.State) []core.WorkItem {
	rank := make(map[string]int, len(states))
	for _, s := range states {
		rank[s.Name] = s.Order
	}
	rankOf := func(w core.WorkItem) int {
		if r, ok := rank[w.State]; ok {
			return r
		}
		return int(^uint(0) >> 1)
	}

	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b core.WorkItem) int {
		return cmp.Or(cmp.Compare(rankOf(a), rankOf(b)), cmp.Compare(a.Order, b.Order))
	})
	return out
}
