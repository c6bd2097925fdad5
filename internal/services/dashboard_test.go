package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsdash/internal/cache"
	"devopsdash/internal/chart"
	"devopsdash/internal/core"
	"devopsdash/internal/devops"
	"devopsdash/internal/devops/memory"
)

var testCreds = core.Credentials{Organization: "org", Project: "Demo", Team: "Demo Team", Token: "pat"}

func newScope(t *testing.T, client devops.Client) Scope {
	t.Helper()
	s, err := NewScope(devops.FactoryFunc(func(core.Credentials) (devops.Client, error) {
		return client, nil
	}), testCreds)
	require.NoError(t, err)
	return s
}

// countingClient counts state lookups and can fail the analytics calls.
type countingClient struct {
	devops.Client
	stateCalls   atomic.Int32
	snapshotsErr error
}

func (c *countingClient) ListProjectStates(ctx context.Context) (devops.ProjectStates, error) {
	c.stateCalls.Add(1)
	return c.Client.ListProjectStates(ctx)
}

func (c *countingClient) Snapshots(ctx context.Context) ([]core.AnalyticsWorkItem, error) {
	if c.snapshotsErr != nil {
		return nil, c.snapshotsErr
	}
	return c.Client.Snapshots(ctx)
}

func stateNames(states []core.State) []string {
	return lo.Map(states, func(s core.State, _ int) string { return s.Name })
}

func itemIDs(items []core.WorkItem) []int {
	return lo.Map(items, func(w core.WorkItem, _ int) int { return w.ID })
}

func TestNewScopeValidatesCredentials(t *testing.T) {
	_, err := NewScope(memory.New(memory.DefaultSeed()).Factory(), core.Credentials{Organization: "org"})
	require.Error(t, err)
	assert.Equal(t, []string{core.ParamProject, core.ParamToken}, core.MissingParameters(err))
}

func TestDashboard_Overview(t *testing.T) {
	d := NewDashboard(nil, nil, nil)
	view, err := d.Overview(context.Background(), newScope(t, memory.New(memory.DefaultSeed())))
	require.NoError(t, err)

	assert.Equal(t, []string{core.StateNew, core.StateActive, "Resolved", core.StateClosed}, stateNames(view.States))

	require.Len(t, view.CurrentIteration, 2)
	assert.Equal(t, "18th Mar 2024", view.CurrentIteration[0].Date)
	n, ok := view.CurrentIteration[0].Get(core.StateNew)
	require.True(t, ok)
	assert.Equal(t, 2.0, n)

	require.Len(t, view.History, 2)
	assert.Equal(t, "19th Mar 2024", view.History[1].Date)
}

func TestDashboard_OverviewFailsAsAWhole(t *testing.T) {
	client := &countingClient{
		Client:       memory.New(memory.DefaultSeed()),
		snapshotsErr: &core.APIError{Method: "GET", URL: "https://analytics", StatusCode: 503, Body: "busy"},
	}
	d := NewDashboard(nil, nil, nil)

	view, err := d.Overview(context.Background(), newScope(t, client))
	require.Error(t, err)
	assert.Empty(t, view.States, "no partial view is returned")

	apiErr, ok := core.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestDashboard_AgeAndLeadCycleTime(t *testing.T) {
	d := NewDashboard(nil, nil, nil)
	s := newScope(t, memory.New(memory.DefaultSeed()))

	age, err := d.Age(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, age.Age, 2)
	_, ok := age.Age[0].Get(chart.ColAverageAge)
	assert.True(t, ok)

	lct, err := d.LeadCycleTime(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, lct.Series, 1, "both rows completed on the same day")
	total, _ := lct.Series[0].Get(chart.ColTotalLeadTime)
	avg, _ := lct.Series[0].Get(chart.ColAverageLeadTime)
	assert.Equal(t, 14.0, total)
	assert.Equal(t, 7.0, avg)
	assert.Len(t, lct.Items, 2)
}

func TestDashboard_StatesAreCached(t *testing.T) {
	client := &countingClient{Client: memory.New(memory.DefaultSeed())}
	d := NewDashboard(cache.NewLRUCache[devops.ProjectStates](4, time.Minute), nil, nil)
	s := newScope(t, client)

	for range 3 {
		_, err := d.States(context.Background(), s)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), client.stateCalls.Load())
}

func TestDashboard_Iteration(t *testing.T) {
	d := NewDashboard(nil, nil, nil)
	s := newScope(t, memory.New(memory.DefaultSeed()))

	t.Run("current", func(t *testing.T) {
		view, err := d.Iteration(context.Background(), s, "")
		require.NoError(t, err)
		require.NotNil(t, view.Iteration)
		assert.Equal(t, "it-2", view.Iteration.ID)
		assert.Equal(t, []int{101, 102}, itemIDs(view.Items))
		assert.Equal(t, []int{1, 2}, lo.Map(view.Items, func(w core.WorkItem, _ int) int { return w.Order }))
		assert.Equal(t, []chart.StateCount{
			{State: core.StateNew, Color: "eeeeee", Count: 1},
			{State: core.StateActive, Color: "007acc", Count: 1},
		}, view.Counts)

		require.Len(t, view.Iterations, 3)
		assert.Equal(t, core.BacklogName, view.Iterations[0].Name)
		assert.Equal(t, core.BacklogRef, view.Iterations[0].ID)
		assert.Equal(t, "(Current) Sprint 2 (18/03/2024 - 29/03/2024)", view.Iterations[2].Label)
		assert.True(t, view.Iterations[2].Current)
	})

	t.Run("by id", func(t *testing.T) {
		view, err := d.Iteration(context.Background(), s, "it-1")
		require.NoError(t, err)
		assert.Equal(t, []int{103}, itemIDs(view.Items))
	})

	t.Run("sorted by state", func(t *testing.T) {
		view, err := d.Iteration(context.Background(), s, "")
		require.NoError(t, err)
		sorted := view.SortedByState()
		assert.Equal(t, []int{102, 101}, itemIDs(sorted.Items))
		assert.Equal(t, []int{2, 1}, lo.Map(sorted.Items, func(w core.WorkItem, _ int) int { return w.Order }))
		assert.Equal(t, []int{101, 102}, itemIDs(view.Items), "source view untouched")
	})

	t.Run("backlog has no grid", func(t *testing.T) {
		_, err := d.Iteration(context.Background(), s, core.BacklogRef)
		assert.ErrorIs(t, err, core.ErrBacklogGrid)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := d.Iteration(context.Background(), s, "it-9")
		require.ErrorIs(t, err, core.ErrIterationNotFound)
		assert.Equal(t, "could not find iteration: it-9", err.Error())
	})
}

func TestDashboard_IterationDropsItemsPlannedElsewhere(t *testing.T) {
	seed := memory.DefaultSeed()
	seed.IterationWorkItems["it-2"] = []int{101, 103, 102}
	d := NewDashboard(nil, nil, nil)

	view, err := d.Iteration(context.Background(), newScope(t, memory.New(seed)), core.TimeFrameCurrent)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102}, itemIDs(view.Items))
}

func TestDashboard_Backlog(t *testing.T) {
	d := NewDashboard(nil, nil, nil)
	s := newScope(t, memory.New(memory.DefaultSeed()))

	t.Run("saved query ordered by stack rank", func(t *testing.T) {
		view, err := d.Backlog(context.Background(), s, BacklogQuery{QueryID: "backlog"})
		require.NoError(t, err)
		assert.Nil(t, view.Iteration)
		assert.Equal(t, []int{102, 104}, itemIDs(view.Items))
		assert.Equal(t, 1, view.Items[0].Order)
		assert.Equal(t, []chart.StateCount{{State: core.StateNew, Color: "eeeeee", Count: 2}}, view.Counts)
	})

	t.Run("area path", func(t *testing.T) {
		view, err := d.Backlog(context.Background(), s, BacklogQuery{Area: core.AreaFilter{AreaPath: `Demo\Api`}})
		require.NoError(t, err)
		assert.Equal(t, []int{103, 104}, itemIDs(view.Items))
	})

	t.Run("no query", func(t *testing.T) {
		_, err := d.Backlog(context.Background(), s, BacklogQuery{})
		assert.ErrorIs(t, err, ErrNoQuery)
	})

	t.Run("unknown saved query", func(t *testing.T) {
		_, err := d.Backlog(context.Background(), s, BacklogQuery{QueryID: "nope"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNoQuery))
	})
}
