package azure

import (
	"context"
	"fmt"
	"net/url"

	"github.com/samber/lo"

	"devopsdash/internal/core"
)

// ListIterations returns the team's iterations with the Backlog pseudo
// iteration prepended.
func (c *Client) ListIterations(ctx context.Context) ([]core.Iteration, error) {
	var resp listResponse[core.Iteration]
	if err := c.get(ctx, c.teamURL("_apis/work/teamsettings/iterations", nil), &resp); err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	return core.WithBacklog(resp.Value), nil
}

// IterationWorkItemIDs returns the distinct targets of the iteration's work
// item relations in response order.
func (c *Client) IterationWorkItemIDs(ctx context.Context, iterationID string) ([]int, error) {
	if iterationID == "" {
		return nil, fmt.Errorf("iteration work items: %w: empty id", core.ErrIterationNotFound)
	}
	path := "_apis/work/teamsettings/iterations/" + url.PathEscape(iterationID) + "/workitems"
	var resp iterationWorkItemsResponse
	if err := c.get(ctx, c.teamURL(path, nil), &resp); err != nil {
		return nil, fmt.Errorf("iteration work items: %w", err)
	}
	ids := make([]int, 0, len(resp.WorkItemRelations))
	for _, rel := range resp.WorkItemRelations {
		if rel.Target != nil {
			ids = append(ids, rel.Target.ID)
		}
	}
	return lo.Uniq(ids), nil
}
