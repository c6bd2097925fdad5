package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"devopsdash/internal/cache"
	"devopsdash/internal/chart"
	"devopsdash/internal/core"
	"devopsdash/internal/devops"
)

// ErrNoQuery is returned by Backlog when neither a saved query nor an area
// path was given.
var ErrNoQuery = errors.New("a saved query id or an area path is required")

// Scope is one connection to a project: the client built for the caller's
// credentials plus the key its lookups are cached under.
type Scope struct {
	Client devops.Client
	Creds  core.Credentials
	Key    string
}

// NewScope validates creds and builds a client for them.
func NewScope(factory devops.Factory, creds core.Credentials) (Scope, error) {
	if err := creds.Validate(); err != nil {
		return Scope{}, err
	}
	client, err := factory.NewClient(creds)
	if err != nil {
		return Scope{}, fmt.Errorf("build devops client: %w", err)
	}
	return Scope{Client: client, Creds: creds, Key: creds.Key()}, nil
}

type (
	OverviewView struct {
		States           []core.State `json:"states"`
		CurrentIteration []*chart.Row `json:"currentIteration"`
		History          []*chart.Row `json:"history"`
	}

	AgeView struct {
		States []core.State `json:"states"`
		Age    []*chart.Row `json:"age"`
	}

	LeadCycleTimeView struct {
		States []core.State         `json:"states"`
		Series []*chart.Row         `json:"series"`
		Items  []core.LeadCycleTime `json:"items"`
	}

	IterationOption struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Label   string `json:"label"`
		Current bool   `json:"current,omitempty"`
	}

	// GridView backs the iteration and backlog pages.
	GridView struct {
		Iteration  *core.Iteration    `json:"iteration,omitempty"`
		Iterations []IterationOption  `json:"iterations"`
		States     []core.State       `json:"states"`
		Counts     []chart.StateCount `json:"counts"`
		Items      []core.WorkItem    `json:"items"`
	}

	BacklogQuery struct {
		QueryID string
		Area    core.AreaFilter
	}
)

// Dashboard builds the read-only views. The caches are optional; a nil cache
// loads on every call.
type Dashboard struct {
	states     cache.Cache[devops.ProjectStates]
	iterations cache.Cache[[]core.Iteration]
	fields     cache.Cache[[]core.FieldDefinition]
}

func NewDashboard(
	states cache.Cache[devops.ProjectStates],
	iterations cache.Cache[[]core.Iteration],
	fields cache.Cache[[]core.FieldDefinition],
) *Dashboard {
	return &Dashboard{states: states, iterations: iterations, fields: fields}
}

func cached[T any](ctx context.Context, c cache.Cache[T], key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	return c.GetOrLoad(ctx, key, load)
}

func (d *Dashboard) States(ctx context.Context, s Scope) (devops.ProjectStates, error) {
	return cached(ctx, d.states, s.Key, s.Client.ListProjectStates)
}

func (d *Dashboard) Iterations(ctx context.Context, s Scope) ([]core.Iteration, error) {
	return cached(ctx, d.iterations, s.Key, s.Client.ListIterations)
}

func (d *Dashboard) Fields(ctx context.Context, s Scope) ([]core.FieldDefinition, error) {
	return cached(ctx, d.fields, s.Key, s.Client.ListFields)
}

// Overview joins the project states with both snapshot series. Nothing is
// built until every fetch has finished.
func (d *Dashboard) Overview(ctx context.Context, s Scope) (OverviewView, error) {
	var (
		states   devops.ProjectStates
		current  []core.AnalyticsWorkItem
		snapshot []core.AnalyticsWorkItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		states, err = d.States(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		current, err = s.Client.CurrentIterationSnapshots(gctx)
		return err
	})
	g.Go(func() (err error) {
		snapshot, err = s.Client.Snapshots(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return OverviewView{}, fmt.Errorf("load overview: %w", err)
	}

	return OverviewView{
		States:           states.States,
		CurrentIteration: chart.CurrentIterationSeries(current),
		History:          chart.HistorySeries(snapshot),
	}, nil
}

func (d *Dashboard) Age(ctx context.Context, s Scope) (AgeView, error) {
	var (
		states   devops.ProjectStates
		snapshot []core.AnalyticsWorkItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		states, err = d.States(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		snapshot, err = s.Client.Snapshots(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return AgeView{}, fmt.Errorf("load age: %w", err)
	}
	return AgeView{States: states.States, Age: chart.AgeSeries(snapshot)}, nil
}

func (d *Dashboard) LeadCycleTime(ctx context.Context, s Scope) (LeadCycleTimeView, error) {
	var (
		states devops.ProjectStates
		rows   []core.LeadCycleTime
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		states, err = d.States(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.Client.LeadCycleTime(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return LeadCycleTimeView{}, fmt.Errorf("load lead and cycle time: %w", err)
	}
	return LeadCycleTimeView{
		States: states.States,
		Series: chart.LeadCycleTimeSeries(rows),
		Items:  rows,
	}, nil
}

// Iteration builds the grid for one sprint. ref is an iteration id, or
// "current"/empty for the sprint in progress. The Backlog has no sprint grid.
func (d *Dashboard) Iteration(ctx context.Context, s Scope, ref string) (GridView, error) {
	var (
		states     devops.ProjectStates
		iterations []core.Iteration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		states, err = d.States(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		iterations, err = d.Iterations(gctx, s)
		return err
	})
	if err := g.Wait(); err != nil {
		return GridView{}, fmt.Errorf("load iteration view: %w", err)
	}

	it, err := core.FindIteration(iterations, ref)
	if err != nil {
		return GridView{}, err
	}
	if it.IsBacklog() {
		return GridView{}, core.ErrBacklogGrid
	}

	ids, err := s.Client.IterationWorkItemIDs(ctx, it.ID)
	if err != nil {
		return GridView{}, fmt.Errorf("list iteration work items: %w", err)
	}
	items, err := s.Client.GetWorkItems(ctx, ids)
	if err != nil {
		return GridView{}, fmt.Errorf("get iteration work items: %w", err)
	}

	// the relations endpoint also returns children planned elsewhere
	items = lo.Filter(items, func(w core.WorkItem, _ int) bool { return w.Iteration == it.Name })

	slog.DebugContext(ctx, "Iteration view loaded",
		"iteration_id", it.ID,
		"iteration_path", it.Path,
		"count", len(items))

	return GridView{
		Iteration:  &it,
		Iterations: iterationOptions(iterations),
		States:     states.States,
		Counts:     chart.CountByState(items, states.States),
		Items:      items,
	}, nil
}

// Backlog builds the grid for a saved query, or for an area path when no
// query id is given. Rows are ordered by stack rank.
func (d *Dashboard) Backlog(ctx context.Context, s Scope, q BacklogQuery) (GridView, error) {
	if q.QueryID == "" && q.Area.AreaPath == "" {
		return GridView{}, ErrNoQuery
	}

	var (
		states     devops.ProjectStates
		iterations []core.Iteration
		ids        []int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		states, err = d.States(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		iterations, err = d.Iterations(gctx, s)
		return err
	})
	g.Go(func() (err error) {
		if q.QueryID != "" {
			ids, err = s.Client.SavedQueryWorkItemIDs(gctx, q.QueryID)
		} else {
			ids, err = s.Client.AreaWorkItemIDs(gctx, q.Area)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return GridView{}, fmt.Errorf("load backlog view: %w", err)
	}

	items, err := s.Client.GetWorkItems(ctx, ids)
	if err != nil {
		return GridView{}, fmt.Errorf("get backlog work items: %w", err)
	}
	items = rankOrder(items)

	return GridView{
		Iterations: iterationOptions(iterations),
		States:     states.States,
		Counts:     chart.CountByState(items, states.States),
		Items:      items,
	}, nil
}

// SortedByState orders the grid rows by state rank, keeping fetch order
// within a state. Order values are left as fetched.
func (v GridView) SortedByState() GridView {
	v.Items = chart.SortByStateRank(v.Items, v.States)
	return v
}

func iterationOptions(iterations []core.Iteration) []IterationOption {
	return lo.Map(iterations, func(it core.Iteration, _ int) IterationOption {
		return IterationOption{ID: it.Ref(), Name: it.Name, Label: it.Label(), Current: it.IsCurrent()}
	})
}

// rankOrder sorts by stack rank and renumbers Order to match.
func rankOrder(items []core.WorkItem) []core.WorkItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b core.WorkItem) int {
		switch {
		case a.StackRank < b.StackRank:
			return -1
		case a.StackRank > b.StackRank:
			return 1
		}
		return 0
	})
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}
