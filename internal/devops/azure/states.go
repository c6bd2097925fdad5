package azure

import (
	"context"
	"fmt"
	"net/url"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"devopsdash/internal/core"
	"devopsdash/internal/devops"
)

// stateFetchLimit bounds concurrent per-type state requests.
const stateFetchLimit = 4

// ListStates returns the visible states of one work item type between the New
// and Closed sentinels.
func (c *Client) ListStates(ctx context.Context, processID, workItemTypeID string) ([]core.State, error) {
	path := "_apis/work/processdefinitions/" + url.PathEscape(processID) +
		"/workItemTypes/" + url.PathEscape(workItemTypeID) + "/states"
	var resp listResponse[core.State]
	if err := c.get(ctx, c.orgURL(path, nil), &resp); err != nil {
		return nil, fmt.Errorf("list states for %s: %w", workItemTypeID, err)
	}
	return devops.FrameStates(resp.Value), nil
}

// ProcessID resolves the project's process template id.
func (c *Client) ProcessID(ctx context.Context) (string, error) {
	q := url.Values{"includeCapabilities": {"true"}}
	var resp projectResponse
	if err := c.get(ctx, c.orgURL("_apis/projects/"+url.PathEscape(c.creds.Project), q), &resp); err != nil {
		return "", fmt.Errorf("get project: %w", err)
	}
	id := resp.Capabilities.ProcessTemplate.TemplateTypeID
	if id == "" {
		return "", fmt.Errorf("get project: %s has no process template", c.creds.Project)
	}
	return id, nil
}

// ProcessWorkItemTypes lists the enabled work item types of a process.
func (c *Client) ProcessWorkItemTypes(ctx context.Context, processID string) ([]core.ProcessWorkItemType, error) {
	path := "_apis/work/processdefinitions/" + url.PathEscape(processID) + "/workItemTypes"
	var resp listResponse[core.ProcessWorkItemType]
	if err := c.get(ctx, c.orgURL(path, nil), &resp); err != nil {
		return nil, fmt.Errorf("list work item types: %w", err)
	}
	return lo.Filter(resp.Value, func(t core.ProcessWorkItemType, _ int) bool { return !t.Disabled }), nil
}

// ListProjectStates walks project -> process -> work item types -> states and
// merges the result.
func (c *Client) ListProjectStates(ctx context.Context) (devops.ProjectStates, error) {
	processID, err := c.ProcessID(ctx)
	if err != nil {
		return devops.ProjectStates{}, err
	}
	types, err := c.ProcessWorkItemTypes(ctx, processID)
	if err != nil {
		return devops.ProjectStates{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stateFetchLimit)
	for i := range types {
		g.Go(func() error {
			states, err := c.ListStates(gctx, processID, types[i].ID)
			if err != nil {
				return err
			}
			types[i].States = states
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return devops.ProjectStates{}, fmt.Errorf("list project states: %w", err)
	}
	return devops.MergeStates(types), nil
}
