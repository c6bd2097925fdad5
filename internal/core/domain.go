package core

import (
	"errors"
	"strings"
	"time"
)

const (
	BacklogName = "Backlog"

	// BacklogRef selects the Backlog wherever an iteration reference is taken.
	BacklogRef = "backlog"

	// IterationPathSeparator splits classification paths like "Project\Sprint 4".
	IterationPathSeparator = `\`

	TimeFramePast    = "past"
	TimeFrameCurrent = "current"
	TimeFrameFuture  = "future"
	TimeFrameNever   = "never"

	CategoryProposed   = "Proposed"
	CategoryInProgress = "InProgress"
	CategoryResolved   = "Resolved"
	CategoryCompleted  = "Completed"
	CategoryRemoved    = "Removed"
	CategoryNew        = "New"

	StateNew     = "New"
	StateActive  = "Active"
	StateDone    = "Done"
	StateClosed  = "Closed"
	StateRemoved = "Removed"

	// PrimaryWorkItemType wins state name collisions when merging process states.
	PrimaryWorkItemType = "User Story"
)

type (
	WorkItem struct {
		ID            int               `json:"id"`
		Rev           int               `json:"rev"`
		URL           string            `json:"url,omitempty"`
		Title         string            `json:"title"`
		State         string            `json:"state"`
		Type          string            `json:"type"`
		AssignedTo    string            `json:"assignedTo,omitempty"`
		StoryPoints   *float64          `json:"storyPoints,omitempty"`
		Tags          string            `json:"tags,omitempty"`
		AreaPath      string            `json:"areaPath"`
		IterationPath string            `json:"iterationPath"`
		Iteration     string            `json:"iteration"` // simplified iteration name
		StackRank     float64           `json:"stackRank,omitempty"`
		Priority      int               `json:"priority,omitempty"`
		CreatedDate   time.Time         `json:"createdDate,omitzero"`
		ChangedDate   time.Time         `json:"changedDate,omitzero"`
		Custom        map[string]string `json:"custom,omitempty"`
		Order         int               `json:"order"` // fetch order, not a business ranking
	}

	State struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Color    string `json:"color"`
		Category string `json:"stateCategory"`
		Order    int    `json:"order"`
		Hidden   bool   `json:"hidden,omitempty"`
		URL      string `json:"url,omitempty"`
	}

	ProcessWorkItemType struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		ReferenceName string  `json:"referenceName,omitempty"`
		Description   string  `json:"description,omitempty"`
		Color         string  `json:"color,omitempty"`
		Disabled      bool    `json:"isDisabled,omitempty"`
		States        []State `json:"states,omitempty"`
	}

	Process struct {
		ID          string `json:"typeId"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		IsDefault   bool   `json:"isDefault,omitempty"`
	}

	AreaPath struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Path        string `json:"path"`
		HasChildren bool   `json:"hasChildren"`
	}

	// PatchOperation is one entry of a JSON-patch document applied to a work item.
	PatchOperation struct {
		Op    string `json:"op"`
		Path  string `json:"path"`
		Value any    `json:"value,omitempty"`
		From  string `json:"from,omitempty"`
	}

	// AreaFilter narrows an area-path work item query.
	AreaFilter struct {
		AreaPath       string
		ExcludeClosed  bool
		ExcludeRemoved bool
		ExcludeDone    bool
	}
)

var (
	ErrIterationNotFound = errors.New("could not find iteration")
	ErrNoWorkItems       = errors.New("no work items")
	ErrInvalidPatch      = errors.New("invalid patch")
	ErrMissingPath       = errors.New("iteration has no path")
	ErrMissingIteration  = errors.New("a target iteration is required")
	ErrBacklogGrid       = errors.New("the backlog has no sprint grid, filter by saved query or area path")
)

// SimplifyIterationPath drops everything up to and including the first path
// separator. Paths without a separator belong to the backlog.
func SimplifyIterationPath(path string) string {
	_, rest, found := strings.Cut(path, IterationPathSeparator)
	if !found {
		return BacklogName
	}
	return rest
}

// RootPath returns the segment before the first path separator, or "" when
// there is none.
func RootPath(path string) string {
	root, _, found := strings.Cut(path, IterationPathSeparator)
	if !found {
		return ""
	}
	return root
}

// TagList splits the semicolon delimited tag string.
func (w WorkItem) TagList() []string {
	if strings.TrimSpace(w.Tags) == "" {
		return nil
	}
	parts := strings.Split(w.Tags, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsCompleted reports whether the state sorts into the completed band.
func (s State) IsCompleted() bool {
	return s.Category == CategoryCompleted
}

// NewSentinelState is prepended to every per-type state list.
func NewSentinelState() State {
	return State{ID: "abc000", Name: StateNew, Color: "eeeeee", Category: CategoryNew, Order: 0}
}

// ClosedSentinelState is appended to every per-type state list.
func ClosedSentinelState() State {
	return State{ID: "zyx987", Name: StateClosed, Color: "339933", Category: CategoryCompleted, Order: 999}
}

// MoveToIteration builds the patch document that reassigns a work item.
func MoveToIteration(path string) ([]PatchOperation, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrMissingPath
	}
	return []PatchOperation{{Op: "add", Path: "/fields/System.IterationPath", Value: path}}, nil
}

// ValidatePatch checks every operation names a supported op and a field path.
func ValidatePatch(ops []PatchOperation) error {
	if len(ops) == 0 {
		return ErrInvalidPatch
	}
	for _, op := range ops {
		switch op.Op {
		case "add", "replace", "remove", "test", "copy", "move":
		default:
			return errors.Join(ErrInvalidPatch, errors.New("unsupported op "+op.Op))
		}
		if !strings.HasPrefix(op.Path, "/") {
			return errors.Join(ErrInvalidPatch, errors.New("path must start with /"))
		}
	}
	return nil
}
