package services

import (
	"context"
	"fmt"
	"time"

	"devopsdash/internal/core"
	"devopsdash/internal/export"
)

type ExportResult struct {
	Checklist export.Checklist `json:"checklist"`
	Ref       string           `json:"ref,omitempty"`
}

// Exporter builds release checklists from the iteration grid. A nil writer
// only returns the checklist.
type Exporter struct {
	dashboard *Dashboard
	writer    export.Writer
	now       func() time.Time
}

func NewExporter(dashboard *Dashboard, writer export.Writer) *Exporter {
	return &Exporter{dashboard: dashboard, writer: writer, now: time.Now}
}

// ReleaseChecklist exports the work items of the iteration identified by
// ref ("current" or empty for the sprint in progress).
func (e *Exporter) ReleaseChecklist(ctx context.Context, s Scope, ref string) (ExportResult, error) {
	grid, err := e.dashboard.Iteration(ctx, s, ref)
	if err != nil {
		return ExportResult{}, err
	}
	defs, err := e.dashboard.Fields(ctx, s)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list fields: %w", err)
	}

	checklist, err := export.BuildReleaseChecklist(grid.Iteration.Name, grid.Items, core.NewFieldTable(defs), e.now())
	if err != nil {
		return ExportResult{}, err
	}
	if e.writer == nil {
		return ExportResult{Checklist: checklist}, nil
	}

	out, err := e.writer.WriteChecklist(ctx, checklist)
	if err != nil {
		return ExportResult{}, fmt.Errorf("write checklist: %w", err)
	}
	return ExportResult{Checklist: checklist, Ref: out}, nil
}
