// Package memory is an in-process devops.Client used for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"devopsdash/internal/core"
	"devopsdash/internal/devops"
)

// Seed is the JSON document a Store is loaded from.
type Seed struct {
	Iterations         []core.Iteration           `json:"iterations"`
	Types              []core.ProcessWorkItemType `json:"types"`
	WorkItems          []core.WorkItem            `json:"workItems"`
	Areas              []core.AreaPath            `json:"areas"`
	Fields             []core.FieldDefinition     `json:"fields"`
	IterationWorkItems map[string][]int           `json:"iterationWorkItems"`
	SavedQueries       map[string][]int           `json:"savedQueries"`
	LeadCycleTime      []core.LeadCycleTime       `json:"leadCycleTime"`
	CurrentIteration   []core.AnalyticsWorkItem   `json:"currentIteration"`
	Snapshots          []core.AnalyticsWorkItem   `json:"snapshots"`
}

type Store struct {
	mu    sync.Mutex
	seed  Seed
	items map[int]core.WorkItem
}

var _ devops.Client = (*Store)(nil)

func New(seed Seed) *Store {
	items := make(map[int]core.WorkItem, len(seed.WorkItems))
	for _, w := range seed.WorkItems {
		w.Iteration = core.SimplifyIterationPath(w.IterationPath)
		items[w.ID] = w
	}
	return &Store{seed: seed, items: items}
}

// NewFromFile loads a seed document. A missing file yields a small default
// project.
func NewFromFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(DefaultSeed()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return New(seed), nil
}

// Factory ignores credentials beyond validating them and always hands out s.
func (s *Store) Factory() devops.Factory {
	return devops.FactoryFunc(func(creds core.Credentials) (devops.Client, error) {
		if err := creds.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (s *Store) ListIterations(_ context.Context) ([]core.Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.WithBacklog(slices.Clone(s.seed.Iterations)), nil
}

func (s *Store) IterationWorkItemIDs(_ context.Context, iterationID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.seed.IterationWorkItems[iterationID]
	if !ok {
		return nil, fmt.Errorf("iteration work items: %w: %s", core.ErrIterationNotFound, iterationID)
	}
	return lo.Uniq(ids), nil
}

func (s *Store) ListStates(_ context.Context, _ string, workItemTypeID string) ([]core.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := lo.Find(s.seed.Types, func(t core.ProcessWorkItemType) bool { return t.ID == workItemTypeID })
	if !ok {
		return nil, fmt.Errorf("list states: unknown work item type %s", workItemTypeID)
	}
	return devops.FrameStates(t.States), nil
}

func (s *Store) ListProjectStates(ctx context.Context) (devops.ProjectStates, error) {
	s.mu.Lock()
	types := lo.Filter(s.seed.Types, func(t core.ProcessWorkItemType, _ int) bool { return !t.Disabled })
	s.mu.Unlock()

	framed := make([]core.ProcessWorkItemType, 0, len(types))
	for _, t := range types {
		states, err := s.ListStates(ctx, "", t.ID)
		if err != nil {
			return devops.ProjectStates{}, err
		}
		t.States = states
		framed = append(framed, t)
	}
	return devops.MergeStates(framed), nil
}

// QueryWorkItemIDs does not parse WIQL; every item is returned in stack rank
// order.
func (s *Store) QueryWorkItemIDs(_ context.Context, _ string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankedIDs(func(core.WorkItem) bool { return true }), nil
}

func (s *Store) SavedQueryWorkItemIDs(_ context.Context, queryID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.seed.SavedQueries[queryID]
	if !ok {
		return nil, fmt.Errorf("run saved query %s: not found", queryID)
	}
	return slices.Clone(ids), nil
}

func (s *Store) AreaWorkItemIDs(_ context.Context, filter core.AreaFilter) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankedIDs(func(w core.WorkItem) bool {
		switch {
		case filter.AreaPath != "" && w.AreaPath != filter.AreaPath:
			return false
		case filter.ExcludeClosed && w.State == core.StateClosed:
			return false
		case filter.ExcludeRemoved && w.State == core.StateRemoved:
			return false
		case filter.ExcludeDone && w.State == core.StateDone:
			return false
		}
		return true
	}), nil
}

func (s *Store) rankedIDs(keep func(core.WorkItem) bool) []int {
	items := lo.Filter(lo.Values(s.items), func(w core.WorkItem, _ int) bool { return keep(w) })
	slices.SortFunc(items, func(a, b core.WorkItem) int {
		if a.StackRank != b.StackRank {
			if a.StackRank < b.StackRank {
				return -1
			}
			return 1
		}
		return a.ID - b.ID
	})
	return lo.Map(items, func(w core.WorkItem, _ int) int { return w.ID })
}

// GetWorkItems returns the known ids in request order. Unknown ids are
// skipped, like deleted items on the real service.
func (s *Store) GetWorkItems(_ context.Context, ids []int) ([]core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.WorkItem, 0, len(ids))
	for _, id := range ids {
		w, ok := s.items[id]
		if !ok {
			continue
		}
		w.Order = len(out) + 1
		out = append(out, w)
	}
	return out, nil
}

// UpdateWorkItem understands add/replace on the iteration path, state and
// title fields.
func (s *Store) UpdateWorkItem(_ context.Context, id int, ops []core.PatchOperation, validateOnly bool) (core.WorkItem, error) {
	if err := core.ValidatePatch(ops); err != nil {
		return core.WorkItem{}, fmt.Errorf("update work item %d: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.items[id]
	if !ok {
		return core.WorkItem{}, &core.APIError{
			Method:     "PATCH",
			URL:        fmt.Sprintf("memory://workitems/%d", id),
			StatusCode: 404,
			Body:       fmt.Sprintf("work item %d does not exist", id),
		}
	}
	for _, op := range ops {
		if op.Op != "add" && op.Op != "replace" {
			continue
		}
		value := fmt.Sprint(op.Value)
		switch strings.TrimPrefix(op.Path, "/fields/") {
		case core.FieldIterationPath:
			w.IterationPath = value
			w.Iteration = core.SimplifyIterationPath(value)
		case core.FieldState:
			w.State = value
		case core.FieldTitle:
			w.Title = value
		}
	}
	if validateOnly {
		return w, nil
	}
	w.Rev++
	s.items[id] = w
	return w, nil
}

func (s *Store) ListAreaPaths(_ context.Context) ([]core.AreaPath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seed.Areas), nil
}

func (s *Store) ListFields(_ context.Context) ([]core.FieldDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seed.Fields), nil
}

func (s *Store) LeadCycleTime(_ context.Context) ([]core.LeadCycleTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seed.LeadCycleTime), nil
}

func (s *Store) CurrentIterationSnapshots(_ context.Context) ([]core.AnalyticsWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seed.CurrentIteration), nil
}

func (s *Store) Snapshots(_ context.Context) ([]core.AnalyticsWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.seed.Snapshots, func(r core.AnalyticsWorkItem, _ int) core.AnalyticsWorkItem {
		return r.WithDaysSinceCreated()
	}), nil
}
