package devops

import (
	"slices"

	"devopsdash/internal/core"
)

// completedRankBase pushes completed states after every active one. Raw
// orders above 99 would overlap the Closed sentinel's band.
const completedRankBase = 900

// ProjectStates is the merged, rank sorted state list of a project plus each
// work item type with its own states.
type ProjectStates struct {
	States []core.State               `json:"states"`
	Types  []core.ProcessWorkItemType `json:"types"`
}

// FrameStates drops hidden states and wraps the rest in the New and Closed
// sentinels.
func FrameStates(raw []core.State) []core.State {
	out := make([]core.State, 0, len(raw)+2)
	out = append(out, core.NewSentinelState())
	for _, s := range raw {
		if !s.Hidden {
			out = append(out, s)
		}
	}
	out = append(out, core.ClosedSentinelState())
	return out
}

// RankState remaps completed states into the 900 band.
func RankState(s core.State) core.State {
	if s.IsCompleted() && s.Order < completedRankBase {
		s.Order = completedRankBase + s.Order
	}
	return s
}

// MergeStates de-duplicates states by name across work item types. The first
// definition seen wins unless a later one belongs to the primary type. The
// result is stable sorted by rank, so merging the same input again yields the
// same list.
func MergeStates(types []core.ProcessWorkItemType) ProjectStates {
	index := make(map[string]int)
	merged := make([]core.State, 0)
	grouped := make([]core.ProcessWorkItemType, 0, len(types))

	for _, t := range types {
		for _, s := range t.States {
			ranked := RankState(s)
			i, seen := index[s.Name]
			switch {
			case !seen:
				index[s.Name] = len(merged)
				merged = append(merged, ranked)
			case t.Name == core.PrimaryWorkItemType:
				merged[i] = ranked
			}
		}
		grouped = append(grouped, t)
	}

	slices.SortStableFunc(merged, func(a, b core.State) int {
		return a.Order - b.Order
	})
	return ProjectStates{States: merged, Types: grouped}
}
