package chart

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"devopsdash/internal/core"
)

const (
	ColAverageAge       = "Average Age"
	ColTotalAge         = "Total Age"
	ColAverageCycleTime = "Average Cycle Time"
	ColTotalCycleTime   = "Total Cycle Time"
	ColAverageLeadTime  = "Average Lead Time"
	ColTotalLeadTime    = "Total Lead Time"
)

func byDate(a core.AnalyticsWorkItem) (string, bool) {
	return a.DateValue, a.DateValue != ""
}

func byState(a core.AnalyticsWorkItem) (string, bool) {
	return a.State, a.State != ""
}

func sortedByDate(rows []core.AnalyticsWorkItem) []core.AnalyticsWorkItem {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b core.AnalyticsWorkItem) int {
		return strings.Compare(a.DateValue, b.DateValue)
	})
	return out
}

func withoutClosed(rows []core.AnalyticsWorkItem) []core.AnalyticsWorkItem {
	return lo.Filter(rows, func(a core.AnalyticsWorkItem, _ int) bool {
		return a.State != core.StateRemoved && a.State != core.StateClosed
	})
}

// CurrentIterationSeries counts snapshot rows per state for each day.
func CurrentIterationSeries(rows []core.AnalyticsWorkItem) []*Row {
	if rows == nil {
		return nil
	}
	out := make([]*Row, 0)
	for _, day := range GroupByKey(sortedByDate(rows), byDate) {
		row := NewRow(FormatDate(day.Key))
		for _, st := range GroupByKey(day.Items, byState) {
			row.Set(st.Key, float64(len(st.Items)))
		}
		out = append(out, row)
	}
	return out
}

// HistorySeries is CurrentIterationSeries without Removed/Closed rows, with
// counts accumulated so repeated state buckets on one day add up.
func HistorySeries(rows []core.AnalyticsWorkItem) []*Row {
	if rows == nil {
		return nil
	}
	out := make([]*Row, 0)
	for _, day := range GroupByKey(sortedByDate(withoutClosed(rows)), byDate) {
		row := NewRow(FormatDate(day.Key))
		for _, st := range GroupByKey(day.Items, byState) {
			row.Add(st.Key, float64(len(st.Items)))
		}
		out = append(out, row)
	}
	return out
}

// AgeSeries reports average and total days-since-created per day, overall and
// per state.
func AgeSeries(rows []core.AnalyticsWorkItem) []*Row {
	if rows == nil {
		return nil
	}
	age := func(a core.AnalyticsWorkItem) float64 { return a.DaysSinceCreated }

	out := make([]*Row, 0)
	for _, day := range GroupByKey(sortedByDate(withoutClosed(rows)), byDate) {
		row := NewRow(FormatDate(day.Key))
		total, avg := sumAvg(day.Items, age)
		row.Set(ColAverageAge, avg)
		row.Set(ColTotalAge, total)
		for _, st := range GroupByKey(day.Items, byState) {
			total, avg := sumAvg(st.Items, age)
			row.Set(st.Key+" "+ColAverageAge, avg)
			row.Set(st.Key+" "+ColTotalAge, total)
		}
		out = append(out, row)
	}
	return out
}

// LeadCycleTimeSeries groups completed items by completion day in arrival
// order and reports average and total cycle and lead time.
func LeadCycleTimeSeries(rows []core.LeadCycleTime) []*Row {
	if rows == nil {
		return nil
	}
	byCompleted := func(l core.LeadCycleTime) (string, bool) {
		return strconv.Itoa(l.CompletedDateSK), l.CompletedDateSK != 0
	}

	out := make([]*Row, 0)
	for _, day := range GroupByKey(rows, byCompleted) {
		row := NewRow(FormatDate(day.Key))
		cycleTotal, cycleAvg := sumAvg(day.Items, func(l core.LeadCycleTime) float64 { return l.CycleTimeDays })
		leadTotal, leadAvg := sumAvg(day.Items, func(l core.LeadCycleTime) float64 { return l.LeadTimeDays })
		row.Set(ColAverageCycleTime, cycleAvg)
		row.Set(ColTotalCycleTime, cycleTotal)
		row.Set(ColAverageLeadTime, leadAvg)
		row.Set(ColTotalLeadTime, leadTotal)
		out = append(out, row)
	}
	return out
}

// sumAvg returns the sum and the mean, with a mean of 0 for an empty bucket.
func sumAvg[T any](items []T, value func(T) float64) (float64, float64) {
	if len(items) == 0 {
		return 0, 0
	}
	total := lo.SumBy(items, value)
	return total, total / float64(len(items))
}
