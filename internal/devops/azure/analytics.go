package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"devopsdash/internal/core"
)

const snapshotGroupBy = `groupby(
	(WorkItemId,Title,DateValue,State,WorkItemType,Priority,CreatedDate,Area/AreaPath,Iteration/IterationPath),
	aggregate($count as Count,StoryPoints with sum as TotalStoryPoints))`

// LeadCycleTime returns completed non-task items closed since January 1st of
// last year.
func (c *Client) LeadCycleTime(ctx context.Context) ([]core.LeadCycleTime, error) {
	since := c.cfg.Now().Year() - 1
	u := c.odataURL("WorkItems", [][2]string{
		{"$filter", fmt.Sprintf(`StateCategory eq 'Completed' and WorkItemType ne 'Task' and CompletedDateSK gt %d0101`, since)},
		{"$select", "WorkItemId,Title,WorkItemType,State,Priority,CycleTimeDays,LeadTimeDays,CompletedDateSK"},
		{"$expand", "AssignedTo($select=UserName),Iteration($select=IterationPath),Area($select=AreaPath)"},
	})
	rows, err := odataAll[core.LeadCycleTime](ctx, c, u)
	if err != nil {
		return nil, fmt.Errorf("lead cycle time: %w", err)
	}
	return rows, nil
}

// CurrentIterationSnapshots returns daily snapshots of open non-task items in
// the iteration running today.
func (c *Client) CurrentIterationSnapshots(ctx context.Context) ([]core.AnalyticsWorkItem, error) {
	u := c.odataURL("WorkItemSnapshot", [][2]string{
		{"$apply", `filter(
			WorkItemType ne 'Task'
			and StateCategory ne 'Completed'
			and DateValue ge Iteration/StartDate
			and DateValue le Iteration/EndDate
			and Iteration/StartDate le now()
			and Iteration/EndDate ge now()
		)/` + snapshotGroupBy},
	})
	rows, err := odataAll[core.AnalyticsWorkItem](ctx, c, u)
	if err != nil {
		return nil, fmt.Errorf("current iteration snapshots: %w", err)
	}
	return rows, nil
}

// Snapshots returns daily snapshots of non-task items since the first day of
// last month, with DaysSinceCreated filled in.
func (c *Client) Snapshots(ctx context.Context) ([]core.AnalyticsWorkItem, error) {
	now := c.cfg.Now()
	since := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
	u := c.odataURL("WorkItemSnapshot", [][2]string{
		{"$apply", fmt.Sprintf(`filter(
			WorkItemType ne 'Task'
			and DateValue ge %s
		)/`, since.Format("2006-01-02")) + snapshotGroupBy},
	})
	rows, err := odataAll[core.AnalyticsWorkItem](ctx, c, u)
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}
	return lo.Map(rows, func(r core.AnalyticsWorkItem, _ int) core.AnalyticsWorkItem {
		return r.WithDaysSinceCreated()
	}), nil
}

// odataAll follows @odata.nextLink until the result set is exhausted.
func odataAll[T any](ctx context.Context, c *Client, next string) ([]T, error) {
	out := make([]T, 0)
	for page := 1; next != ""; page++ {
		var resp odataResponse[T]
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		out = append(out, resp.Value...)
		next = resp.NextLink
	}
	return out, nil
}
