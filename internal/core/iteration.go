package core

import (
	"fmt"
	"strings"
	"time"
)

type (
	Iteration struct {
		ID         string              `json:"id"`
		Name       string              `json:"name"`
		Path       string              `json:"path"`
		URL        string              `json:"url,omitempty"`
		Attributes IterationAttributes `json:"attributes"`
	}

	IterationAttributes struct {
		StartDate  *time.Time `json:"startDate,omitempty"`
		FinishDate *time.Time `json:"finishDate,omitempty"`
		TimeFrame  string     `json:"timeFrame"`
	}
)

const pickerDateLayout = "02/01/2006"

// BacklogIteration is the pseudo iteration standing for "no sprint".
func BacklogIteration(path string) Iteration {
	return Iteration{
		ID:         "",
		Name:       BacklogName,
		Path:       path,
		Attributes: IterationAttributes{TimeFrame: TimeFrameNever},
	}
}

// WithBacklog prepends the Backlog entry. Its path is the root segment of the
// first real iteration's path, empty when there are no iterations or that path
// has no separator.
func WithBacklog(iterations []Iteration) []Iteration {
	path := ""
	if len(iterations) > 0 {
		path = RootPath(iterations[0].Path)
	}
	out := make([]Iteration, 0, len(iterations)+1)
	out = append(out, BacklogIteration(path))
	return append(out, iterations...)
}

func (i Iteration) IsCurrent() bool {
	return i.Attributes.TimeFrame == TimeFrameCurrent
}

func (i Iteration) IsBacklog() bool {
	return i.ID == "" && i.Name == BacklogName
}

// Ref is the reference FindIteration resolves back to i.
func (i Iteration) Ref() string {
	if i.IsBacklog() {
		return BacklogRef
	}
	return i.ID
}

// Label renders the picker text, e.g. "(Current) Sprint 4 (01/02/2024 - 14/02/2024)".
func (i Iteration) Label() string {
	label := i.Name
	if i.IsCurrent() {
		label = "(Current) " + label
	}
	if i.Attributes.StartDate != nil && i.Attributes.FinishDate != nil {
		label = fmt.Sprintf("%s (%s - %s)", label,
			i.Attributes.StartDate.Format(pickerDateLayout),
			i.Attributes.FinishDate.Format(pickerDateLayout))
	}
	return label
}

// FindIteration resolves "current" (or an empty reference) to the iteration
// whose time frame is current, "backlog" to the Backlog entry, anything else
// by id.
func FindIteration(iterations []Iteration, ref string) (Iteration, error) {
	for _, it := range iterations {
		if strings.EqualFold(ref, BacklogRef) {
			if it.IsBacklog() {
				return it, nil
			}
			continue
		}
		if ref == "" || ref == TimeFrameCurrent {
			if it.IsCurrent() {
				return it, nil
			}
			continue
		}
		if it.ID == ref {
			return it, nil
		}
	}
	if ref == "" {
		ref = TimeFrameCurrent
	}
	return Iteration{}, fmt.Errorf("%w: %s", ErrIterationNotFound, ref)
}
