package chart

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsdash/internal/core"
)

func snap(date, state string, age float64) core.AnalyticsWorkItem {
	return core.AnalyticsWorkItem{DateValue: date, State: state, DaysSinceCreated: age, Count: 1}
}

// rowMap flattens a row for cmp.Diff.
func rowMap(r *Row) map[string]any {
	m := make(map[string]any, len(r.values)+1)
	m[DateColumn] = r.Date
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

func rowMaps(rows []*Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = rowMap(r)
	}
	return out
}

func TestGroupByKeyPartitions(t *testing.T) {
	type rec struct {
		key string
		id  int
	}
	items := []rec{{"b", 1}, {"a", 2}, {"", 3}, {"b", 4}, {"c", 5}, {"a", 6}}
	groups := GroupByKey(items, func(r rec) (string, bool) { return r.key, r.key != "" })

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{groups[0].Key, groups[1].Key, groups[2].Key})

	seen := map[int]bool{}
	for _, g := range groups {
		for _, r := range g.Items {
			assert.Equal(t, g.Key, r.key)
			seen[r.id] = true
		}
	}
	assert.Len(t, seen, 5)
	assert.False(t, seen[3], "records without a key must be dropped")
	assert.Equal(t, []rec{{"b", 1}, {"b", 4}}, groups[0].Items)
}

func TestGroupByKeyNil(t *testing.T) {
	assert.Nil(t, GroupByKey[int](nil, func(int) (string, bool) { return "", true }))
}

func TestFormatDate(t *testing.T) {
	cases := map[string]string{
		"2024-01-01":                "1st Jan 2024",
		"2024-01-02T00:00:00Z":      "2nd Jan 2024",
		"2024-03-23T00:00:00-08:00": "23rd Mar 2024",
		"20241111":                  "11th Nov 2024",
		"not a date":                "not a date",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDate(in), in)
	}
}

func TestHistorySeriesScenario(t *testing.T) {
	rows := []core.AnalyticsWorkItem{
		snap("2024-01-02", "Active", 0),
		snap("2024-01-01", "Active", 0),
		snap("2024-01-01", "Done", 0),
		snap("2024-01-01", "Active", 0),
		snap("2024-01-01", "Closed", 0),
		snap("2024-01-02", "Removed", 0),
	}

	got := HistorySeries(rows)

	want := []map[string]any{
		{"Date": "1st Jan 2024", "Active": 2.0, "Done": 1.0},
		{"Date": "2nd Jan 2024", "Active": 1.0},
	}
	if diff := cmp.Diff(want, rowMaps(got)); diff != "" {
		t.Fatalf("history series mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Active", "Done"}, got[0].columns)
}

func TestCurrentIterationSeriesKeepsClosed(t *testing.T) {
	rows := []core.AnalyticsWorkItem{
		snap("2024-01-01", "Closed", 0),
		snap("2024-01-01", "New", 0),
		snap("2024-01-01", "New", 0),
	}
	got := CurrentIterationSeries(rows)
	require.Len(t, got, 1)
	want := map[string]any{"Date": "1st Jan 2024", "Closed": 1.0, "New": 2.0}
	if diff := cmp.Diff(want, rowMap(got[0])); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Closed", "New"}, got[0].columns)
}

func TestSeriesNilInput(t *testing.T) {
	assert.Nil(t, CurrentIterationSeries(nil))
	assert.Nil(t, HistorySeries(nil))
	assert.Nil(t, AgeSeries(nil))
	assert.Nil(t, LeadCycleTimeSeries(nil))
	assert.Empty(t, HistorySeries([]core.AnalyticsWorkItem{snap("2024-01-01", "Closed", 1)}))
}

func TestSeriesDoNotMutateInput(t *testing.T) {
	rows := []core.AnalyticsWorkItem{snap("2024-01-02", "A", 1), snap("2024-01-01", "B", 2)}
	_ = HistorySeries(rows)
	_ = AgeSeries(rows)
	assert.Equal(t, "2024-01-02", rows[0].DateValue)
}

func TestAgeSeriesTotals(t *testing.T) {
	rows := []core.AnalyticsWorkItem{
		snap("2024-01-01", "Active", 4),
		snap("2024-01-01", "Active", 6),
		snap("2024-01-01", "New", 2),
		snap("2024-01-01", "Closed", 100),
		snap("2024-01-02", "New", 0),
	}
	got := AgeSeries(rows)
	require.Len(t, got, 2)

	want := map[string]any{
		"Date":               "1st Jan 2024",
		"Average Age":        4.0,
		"Total Age":          12.0,
		"Active Average Age": 5.0,
		"Active Total Age":   10.0,
		"New Average Age":    2.0,
		"New Total Age":      2.0,
	}
	if diff := cmp.Diff(want, rowMap(got[0])); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Average Age", "Total Age", "Active Average Age", "Active Total Age", "New Average Age", "New Total Age"}, got[0].columns)

	avg, _ := got[1].Get(ColAverageAge)
	assert.Equal(t, 0.0, avg)
}

func TestAgeSeriesInvariant(t *testing.T) {
	rows := []core.AnalyticsWorkItem{
		snap("2024-02-01", "Active", 1),
		snap("2024-02-01", "Active", 2),
		snap("2024-02-01", "Resolved", 7),
		snap("2024-02-02", "Active", 3),
	}
	for _, row := range AgeSeries(rows) {
		total, _ := row.Get(ColTotalAge)
		avg, _ := row.Get(ColAverageAge)
		var sum float64
		var n int
		for _, r := range rows {
			if FormatDate(r.DateValue) == row.Date {
				sum += r.DaysSinceCreated
				n++
			}
		}
		assert.Equal(t, sum, total, row.Date)
		assert.InDelta(t, sum/float64(n), avg, 1e-9, row.Date)
	}
}

func TestLeadCycleTimeSeries(t *testing.T) {
	rows := []core.LeadCycleTime{
		{WorkItemID: 1, CompletedDateSK: 20240105, CycleTimeDays: 2, LeadTimeDays: 10},
		{WorkItemID: 2, CompletedDateSK: 20240103, CycleTimeDays: 4, LeadTimeDays: 5},
		{WorkItemID: 3, CompletedDateSK: 20240105, CycleTimeDays: 3.5, LeadTimeDays: 7},
		{WorkItemID: 4, CompletedDateSK: 0, CycleTimeDays: 99, LeadTimeDays: 99},
	}
	got := LeadCycleTimeSeries(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "5th Jan 2024", got[0].Date, "arrival order, no sort")
	assert.Equal(t, "3rd Jan 2024", got[1].Date)

	want := map[string]any{
		"Date":               "5th Jan 2024",
		"Average Cycle Time": 2.75,
		"Total Cycle Time":   5.5,
		"Average Lead Time":  8.5,
		"Total Lead Time":    17.0,
	}
	if diff := cmp.Diff(want, rowMap(got[0])); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	counts := map[string]float64{"5th Jan 2024": 2, "3rd Jan 2024": 1}
	for _, row := range got {
		avgCycle, _ := row.Get(ColAverageCycleTime)
		totalCycle, _ := row.Get(ColTotalCycleTime)
		avgLead, _ := row.Get(ColAverageLeadTime)
		totalLead, _ := row.Get(ColTotalLeadTime)
		assert.True(t, math.Abs(avgCycle*counts[row.Date]-totalCycle) < 1e-9)
		assert.True(t, math.Abs(avgLead*counts[row.Date]-totalLead) < 1e-9)
	}
}

func TestRowMarshalKeepsColumnOrder(t *testing.T) {
	row := NewRow("1st Jan 2024")
	row.Set("Zeta", 1)
	row.Set("Alpha", 2.5)
	row.Add("Zeta", 1)

	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"Date":"1st Jan 2024","Zeta":2,"Alpha":2.5}`, string(b))

	rows, err := json.Marshal([]*Row{row})
	require.NoError(t, err)
	assert.Equal(t, `[{"Date":"1st Jan 2024","Zeta":2,"Alpha":2.5}]`, string(rows))
}
