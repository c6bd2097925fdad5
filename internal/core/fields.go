package core

import (
	"slices"
	"strconv"
	"strings"
)

// Field reference names read from the work item field bag.
const (
	FieldID            = "System.Id"
	FieldTitle         = "System.Title"
	FieldState         = "System.State"
	FieldWorkItemType  = "System.WorkItemType"
	FieldAssignedTo    = "System.AssignedTo"
	FieldTags          = "System.Tags"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldTeamProject   = "System.TeamProject"
	FieldCreatedDate   = "System.CreatedDate"
	FieldChangedDate   = "System.ChangedDate"
	FieldStoryPoints   = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldStackRank     = "Microsoft.VSTS.Common.StackRank"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"

	CustomFieldPrefix = "Custom."
)

// FieldDefinition is one entry of the organization's field schema.
type FieldDefinition struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
	Type          string `json:"type"`
	ReadOnly      bool   `json:"readOnly"`
}

func (f FieldDefinition) IsCustom() bool {
	return strings.HasPrefix(f.ReferenceName, CustomFieldPrefix)
}

// Accessor reads one field of a work item as display text.
type Accessor func(WorkItem) (string, bool)

// FieldTable maps field reference names to typed accessors. It is built once
// from schema discovery and replaces string indexing into raw field bags.
type FieldTable struct {
	defs      map[string]FieldDefinition
	accessors map[string]Accessor
	order     []string
}

var systemAccessors = map[string]Accessor{
	FieldID:            func(w WorkItem) (string, bool) { return strconv.Itoa(w.ID), true },
	FieldTitle:         func(w WorkItem) (string, bool) { return w.Title, true },
	FieldState:         func(w WorkItem) (string, bool) { return w.State, true },
	FieldWorkItemType:  func(w WorkItem) (string, bool) { return w.Type, true },
	FieldAssignedTo:    func(w WorkItem) (string, bool) { return w.AssignedTo, w.AssignedTo != "" },
	FieldTags:          func(w WorkItem) (string, bool) { return w.Tags, true },
	FieldAreaPath:      func(w WorkItem) (string, bool) { return w.AreaPath, true },
	FieldIterationPath: func(w WorkItem) (string, bool) { return w.IterationPath, true },
	FieldStoryPoints: func(w WorkItem) (string, bool) {
		if w.StoryPoints == nil {
			return "", false
		}
		return strconv.FormatFloat(*w.StoryPoints, 'f', -1, 64), true
	},
	FieldStackRank: func(w WorkItem) (string, bool) {
		return strconv.FormatFloat(w.StackRank, 'f', -1, 64), true
	},
	FieldPriority: func(w WorkItem) (string, bool) { return strconv.Itoa(w.Priority), w.Priority != 0 },
}

// NewFieldTable keeps the system fields that have a typed accessor plus every
// custom field; anything else in the schema is ignored.
func NewFieldTable(defs []FieldDefinition) *FieldTable {
	t := &FieldTable{
		defs:      make(map[string]FieldDefinition, len(defs)),
		accessors: make(map[string]Accessor, len(defs)),
	}
	for _, d := range defs {
		if _, dup := t.defs[d.ReferenceName]; dup {
			continue
		}
		var acc Accessor
		switch {
		case systemAccessors[d.ReferenceName] != nil:
			acc = systemAccessors[d.ReferenceName]
		case d.IsCustom():
			ref := d.ReferenceName
			acc = func(w WorkItem) (string, bool) {
				v, ok := w.Custom[ref]
				return v, ok
			}
		default:
			continue
		}
		t.defs[d.ReferenceName] = d
		t.accessors[d.ReferenceName] = acc
		t.order = append(t.order, d.ReferenceName)
	}
	return t
}

// Get reads a field by reference name.
func (t *FieldTable) Get(w WorkItem, ref string) (string, bool) {
	acc, ok := t.accessors[ref]
	if !ok {
		return "", false
	}
	return acc(w)
}

// Custom returns the custom field definitions sorted by display name.
func (t *FieldTable) Custom() []FieldDefinition {
	var out []FieldDefinition
	for _, ref := range t.order {
		if d := t.defs[ref]; d.IsCustom() {
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b FieldDefinition) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (t *FieldTable) Len() int { return len(t.order) }
