// Package export turns iteration work items into a release checklist and
// writes it to a spreadsheet.
package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/net/html"

	"devopsdash/internal/core"
)

const checklistDateLayout = "2006-01-02"

// Columns every checklist has before and after the custom fields. The
// trailing ones are filled in by hand during a release.
var (
	leadingColumns  = []string{"ID", "Title", "Tags", "Status"}
	trailingColumns = []string{"Backed up", "Deployed to Pre-Production", "Deployed to Production", "Deployed to Training", "Notes"}
)

type Checklist struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Writer publishes a checklist and returns where it landed.
type Writer interface {
	WriteChecklist(ctx context.Context, c Checklist) (ref string, err error)
}

// BuildReleaseChecklist lays out one row per item. Custom fields whose
// reference or display name mentions "block" are left out and HTML is
// stripped from the remaining custom values. Tags are normalized to "a; b". iteration names the checklist; when empty the first item's
// iteration is used.
func BuildReleaseChecklist(iteration string, items []core.WorkItem, fields *core.FieldTable, date time.Time) (Checklist, error) {
	if len(items) == 0 {
		return Checklist{}, core.ErrNoWorkItems
	}
	if iteration == "" {
		iteration = items[0].Iteration
	}

	custom := lo.Filter(fields.Custom(), func(d core.FieldDefinition, _ int) bool {
		return !strings.Contains(strings.ToLower(d.ReferenceName), "block") &&
			!strings.Contains(strings.ToLower(d.Name), "block")
	})

	columns := make([]string, 0, len(leadingColumns)+len(custom)+len(trailingColumns))
	columns = append(columns, leadingColumns...)
	for _, d := range custom {
		columns = append(columns, d.Name)
	}
	columns = append(columns, trailingColumns...)

	rows := make([][]string, 0, len(items))
	for _, w := range items {
		row := make([]string, 0, len(columns))
		row = append(row, strconv.Itoa(w.ID), w.Title, strings.Join(w.TagList(), "; "), w.State)
		for _, d := range custom {
			v, _ := fields.Get(w, d.ReferenceName)
			row = append(row, StripHTML(v))
		}
		// blank cells for the manual columns
		row = append(row, make([]string, len(trailingColumns))...)
		rows = append(rows, row)
	}

	return Checklist{
		Title:   fmt.Sprintf("Release Checklist - %s - %s", iteration, date.Format(checklistDateLayout)),
		Columns: columns,
		Rows:    rows,
	}, nil
}

// StripHTML keeps only the text content of s.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
