package core

import (
	"math"
	"time"
)

type (
	// AnalyticsWorkItem is one WorkItemSnapshot row: a work item on one tracked day.
	AnalyticsWorkItem struct {
		WorkItemID       int                 `json:"WorkItemId"`
		Title            string              `json:"Title"`
		WorkItemType     string              `json:"WorkItemType"`
		State            string              `json:"State"`
		Priority         int                 `json:"Priority"`
		DateValue        string              `json:"DateValue"`
		CreatedDate      string              `json:"CreatedDate"`
		Count            float64             `json:"Count"`
		TotalStoryPoints float64             `json:"TotalStoryPoints"`
		Area             *AnalyticsArea      `json:"Area,omitempty"`
		Iteration        *AnalyticsIteration `json:"Iteration,omitempty"`
		DaysSinceCreated float64             `json:"daysSinceCreated"`
	}

	LeadCycleTime struct {
		WorkItemID      int                 `json:"WorkItemId"`
		Title           string              `json:"Title"`
		WorkItemType    string              `json:"WorkItemType"`
		State           string              `json:"State"`
		Priority        int                 `json:"Priority"`
		CompletedDateSK int                 `json:"CompletedDateSK"`
		CycleTimeDays   float64             `json:"CycleTimeDays"`
		LeadTimeDays    float64             `json:"LeadTimeDays"`
		AssignedTo      *AnalyticsUser      `json:"AssignedTo,omitempty"`
		Area            *AnalyticsArea      `json:"Area,omitempty"`
		Iteration       *AnalyticsIteration `json:"Iteration,omitempty"`
	}

	AnalyticsArea struct {
		AreaPath string `json:"AreaPath"`
	}

	AnalyticsIteration struct {
		IterationPath string `json:"IterationPath"`
	}

	AnalyticsUser struct {
		UserName string `json:"UserName"`
	}
)

// analyticsLayouts covers the timestamp shapes the analytics service emits.
var analyticsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseAnalyticsTime parses DateValue/CreatedDate values.
func ParseAnalyticsTime(s string) (time.Time, bool) {
	for _, layout := range analyticsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WithDaysSinceCreated fills DaysSinceCreated with the whole days between the
// snapshot date and the creation date. Rows with unparseable dates get 0.
func (a AnalyticsWorkItem) WithDaysSinceCreated() AnalyticsWorkItem {
	day, ok1 := ParseAnalyticsTime(a.DateValue)
	created, ok2 := ParseAnalyticsTime(a.CreatedDate)
	if !ok1 || !ok2 {
		a.DaysSinceCreated = 0
		return a
	}
	a.DaysSinceCreated = math.Trunc(day.Sub(created).Hours() / 24)
	return a
}
