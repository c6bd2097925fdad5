package azure

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"devopsdash/internal/core"
)

// Response envelopes of the REST and OData endpoints.
type (
	listResponse[T any] struct {
		Count int `json:"count"`
		Value []T `json:"value"`
	}

	odataResponse[T any] struct {
		Value    []T    `json:"value"`
		NextLink string `json:"@odata.nextLink"`
	}

	projectResponse struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Capabilities struct {
			ProcessTemplate struct {
				TemplateName   string `json:"templateName"`
				TemplateTypeID string `json:"templateTypeId"`
			} `json:"processTemplate"`
		} `json:"capabilities"`
	}

	wiqlRequest struct {
		Query string `json:"query"`
	}

	wiqlResponse struct {
		QueryType string            `json:"queryType"`
		WorkItems []workItemRefWire `json:"workItems"`
	}

	iterationWorkItemsResponse struct {
		WorkItemRelations []struct {
			Rel    *string          `json:"rel"`
			Source *workItemRefWire `json:"source"`
			Target *workItemRefWire `json:"target"`
		} `json:"workItemRelations"`
	}

	workItemRefWire struct {
		ID  int    `json:"id"`
		URL string `json:"url"`
	}

	workItemWire struct {
		ID     int                        `json:"id"`
		Rev    int                        `json:"rev"`
		URL    string                     `json:"url"`
		Fields map[string]json.RawMessage `json:"fields"`
	}

	identityWire struct {
		DisplayName string `json:"displayName"`
		UniqueName  string `json:"uniqueName"`
	}

	classificationNode struct {
		ID            int                  `json:"id"`
		Name          string               `json:"name"`
		StructureType string               `json:"structureType"`
		HasChildren   bool                 `json:"hasChildren"`
		Path          string               `json:"path"`
		Children      []classificationNode `json:"children"`
	}
)

// toWorkItem flattens the raw field bag. Custom.* fields are kept as text.
func (w workItemWire) toWorkItem(order int) core.WorkItem {
	item := core.WorkItem{
		ID:    w.ID,
		Rev:   w.Rev,
		URL:   w.URL,
		Order: order,
	}
	f := fieldBag(w.Fields)
	item.Title = f.text(core.FieldTitle)
	item.State = f.text(core.FieldState)
	item.Type = f.text(core.FieldWorkItemType)
	item.AssignedTo = f.identity(core.FieldAssignedTo)
	item.Tags = f.text(core.FieldTags)
	item.AreaPath = f.text(core.FieldAreaPath)
	item.IterationPath = f.text(core.FieldIterationPath)
	item.Iteration = core.SimplifyIterationPath(item.IterationPath)
	item.StoryPoints = f.number(core.FieldStoryPoints)
	if v := f.number(core.FieldStackRank); v != nil {
		item.StackRank = *v
	}
	if v := f.number(core.FieldPriority); v != nil {
		item.Priority = int(*v)
	}
	item.CreatedDate = f.timestamp(core.FieldCreatedDate)
	item.ChangedDate = f.timestamp(core.FieldChangedDate)

	for ref := range w.Fields {
		if !strings.HasPrefix(ref, core.CustomFieldPrefix) {
			continue
		}
		if v, ok := f.display(ref); ok {
			if item.Custom == nil {
				item.Custom = make(map[string]string)
			}
			item.Custom[ref] = v
		}
	}
	return item
}

type fieldBag map[string]json.RawMessage

func (f fieldBag) text(ref string) string {
	var s string
	if raw, ok := f[ref]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (f fieldBag) number(ref string) *float64 {
	raw, ok := f[ref]
	if !ok {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func (f fieldBag) timestamp(ref string) time.Time {
	var t time.Time
	if raw, ok := f[ref]; ok {
		_ = json.Unmarshal(raw, &t)
	}
	return t
}

func (f fieldBag) identity(ref string) string {
	raw, ok := f[ref]
	if !ok {
		return ""
	}
	var id identityWire
	if err := json.Unmarshal(raw, &id); err == nil {
		return id.DisplayName
	}
	// older API versions return "Name <domain\user>"
	return f.text(ref)
}

// display renders scalar custom values as text; objects and nulls are skipped.
func (f fieldBag) display(ref string) (string, bool) {
	var v any
	if err := json.Unmarshal(f[ref], &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// areaPath strips the tree type segment: `\Project\Area\Team` -> `Project\Team`.
func areaPath(raw string) string {
	segments := strings.Split(strings.TrimPrefix(raw, core.IterationPathSeparator), core.IterationPathSeparator)
	if len(segments) > 1 && strings.EqualFold(segments[1], "Area") {
		segments = append(segments[:1], segments[2:]...)
	}
	return strings.Join(segments, core.IterationPathSeparator)
}

// flattenAreas walks the classification tree depth first keeping only area nodes.
func flattenAreas(node classificationNode, out []core.AreaPath) []core.AreaPath {
	if node.StructureType != "area" {
		return out
	}
	out = append(out, core.AreaPath{
		ID:          node.ID,
		Name:        node.Name,
		Path:        areaPath(node.Path),
		HasChildren: node.HasChildren,
	})
	for _, child := range node.Children {
		out = flattenAreas(child, out)
	}
	return out
}

// escapeWIQL doubles single quotes inside a WIQL string literal.
func escapeWIQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// BuildAreaQuery renders the WIQL for an area path filter.
func BuildAreaQuery(project string, filter core.AreaFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT [%s] FROM WorkItems WHERE [%s] = '%s'", core.FieldID, core.FieldTeamProject, escapeWIQL(project))
	if filter.AreaPath != "" {
		fmt.Fprintf(&b, " AND [%s] = '%s'", core.FieldAreaPath, escapeWIQL(filter.AreaPath))
	}
	if filter.ExcludeClosed {
		fmt.Fprintf(&b, " AND [%s] <> '%s'", core.FieldState, core.StateClosed)
	}
	if filter.ExcludeRemoved {
		fmt.Fprintf(&b, " AND [%s] <> '%s'", core.FieldState, core.StateRemoved)
	}
	if filter.ExcludeDone {
		fmt.Fprintf(&b, " AND [%s] <> '%s'", core.FieldState, core.StateDone)
	}
	fmt.Fprintf(&b, " ORDER BY [%s] ASC", core.FieldStackRank)
	return b.String()
}
