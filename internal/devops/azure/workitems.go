package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"devopsdash/internal/core"
)

// QueryWorkItemIDs posts a WIQL query and returns the matching ids.
func (c *Client) QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error) {
	var resp wiqlResponse
	err := c.send(ctx, http.MethodPost, c.projectURL("_apis/wit/wiql", nil), contentTypeJSON, wiqlRequest{Query: wiql}, &resp)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return queryIDs(resp), nil
}

// SavedQueryWorkItemIDs runs a stored query by id.
func (c *Client) SavedQueryWorkItemIDs(ctx context.Context, queryID string) ([]int, error) {
	var resp wiqlResponse
	if err := c.get(ctx, c.projectURL("_apis/wit/wiql/"+url.PathEscape(queryID), nil), &resp); err != nil {
		return nil, fmt.Errorf("run saved query %s: %w", queryID, err)
	}
	return queryIDs(resp), nil
}

// AreaWorkItemIDs runs the area path query with the requested exclusions.
func (c *Client) AreaWorkItemIDs(ctx context.Context, filter core.AreaFilter) ([]int, error) {
	return c.QueryWorkItemIDs(ctx, BuildAreaQuery(c.creds.Project, filter))
}

func queryIDs(resp wiqlResponse) []int {
	return lo.Map(resp.WorkItems, func(w workItemRefWire, _ int) int { return w.ID })
}

// GetWorkItems fetches ids in sequential batches of 200, in request order.
// Order is numbered 1..N across all batches. A failing batch fails the call
// and earlier batches are discarded.
func (c *Client) GetWorkItems(ctx context.Context, ids []int) ([]core.WorkItem, error) {
	items := make([]core.WorkItem, 0, len(ids))
	order := 0
	for i, chunk := range lo.Chunk(ids, maxBatchSize) {
		q := url.Values{"ids": {joinIDs(chunk)}}
		var resp listResponse[*workItemWire]
		if err := c.get(ctx, c.projectURL("_apis/wit/workitems", q), &resp); err != nil {
			return nil, fmt.Errorf("get work items batch %d: %w", i+1, err)
		}
		for _, w := range resp.Value {
			if w == nil {
				continue
			}
			order++
			items = append(items, w.toWorkItem(order))
		}
	}
	return items, nil
}

// UpdateWorkItem applies a JSON-patch document to one work item.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, ops []core.PatchOperation, validateOnly bool) (core.WorkItem, error) {
	if err := core.ValidatePatch(ops); err != nil {
		return core.WorkItem{}, fmt.Errorf("update work item %d: %w", id, err)
	}
	q := url.Values{"validateOnly": {strconv.FormatBool(validateOnly)}}
	var resp workItemWire
	err := c.send(ctx, http.MethodPatch, c.projectURL("_apis/wit/workitems/"+strconv.Itoa(id), q), contentTypeJSONPatch, ops, &resp)
	if err != nil {
		return core.WorkItem{}, fmt.Errorf("update work item %d: %w", id, err)
	}
	return resp.toWorkItem(0), nil
}

// ListFields returns the project's field schema.
func (c *Client) ListFields(ctx context.Context) ([]core.FieldDefinition, error) {
	var resp listResponse[core.FieldDefinition]
	if err := c.get(ctx, c.projectURL("_apis/wit/fields", nil), &resp); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return resp.Value, nil
}

// ListAreaPaths flattens the area classification tree.
func (c *Client) ListAreaPaths(ctx context.Context) ([]core.AreaPath, error) {
	q := url.Values{"$depth": {"10"}}
	var root classificationNode
	if err := c.get(ctx, c.projectURL("_apis/wit/classificationnodes/areas", q), &root); err != nil {
		return nil, fmt.Errorf("list area paths: %w", err)
	}
	return flattenAreas(root, make([]core.AreaPath, 0)), nil
}

func joinIDs(ids []int) string {
	return strings.Join(lo.Map(ids, func(id int, _ int) string { return strconv.Itoa(id) }), ",")
}
