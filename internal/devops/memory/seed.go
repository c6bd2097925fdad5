package memory

import (
	"time"

	"devopsdash/internal/core"
)

func ptr[T any](v T) *T { return &v }

// DefaultSeed is a two sprint project with a handful of stories and bugs.
func DefaultSeed() Seed {
	day := func(m time.Month, d int) *time.Time {
		return ptr(time.Date(2024, m, d, 0, 0, 0, 0, time.UTC))
	}
	return Seed{
		Iterations: []core.Iteration{
			{ID: "it-1", Name: "Sprint 1", Path: `Demo\Sprint 1`, Attributes: core.IterationAttributes{
				StartDate: day(time.March, 4), FinishDate: day(time.March, 15), TimeFrame: core.TimeFramePast,
			}},
			{ID: "it-2", Name: "Sprint 2", Path: `Demo\Sprint 2`, Attributes: core.IterationAttributes{
				StartDate: day(time.March, 18), FinishDate: day(time.March, 29), TimeFrame: core.TimeFrameCurrent,
			}},
		},
		Types: []core.ProcessWorkItemType{
			{ID: "Demo.UserStory", Name: core.PrimaryWorkItemType, States: []core.State{
				{ID: "s1", Name: core.StateActive, Color: "007acc", Category: core.CategoryInProgress, Order: 1},
				{ID: "s2", Name: "Resolved", Color: "ff9d00", Category: core.CategoryResolved, Order: 2},
			}},
			{ID: "Demo.Bug", Name: "Bug", States: []core.State{
				{ID: "b1", Name: core.StateActive, Color: "cc293d", Category: core.CategoryInProgress, Order: 1},
			}},
		},
		WorkItems: []core.WorkItem{
			{ID: 101, Title: "Login page", State: core.StateActive, Type: core.PrimaryWorkItemType, AreaPath: `Demo\Web`, IterationPath: `Demo\Sprint 2`, StackRank: 10, Tags: "ui"},
			{ID: 102, Title: "Password reset", State: core.StateNew, Type: core.PrimaryWorkItemType, AreaPath: `Demo\Web`, IterationPath: `Demo\Sprint 2`, StackRank: 20},
			{ID: 103, Title: "Crash on save", State: "Resolved", Type: "Bug", AreaPath: `Demo\Api`, IterationPath: `Demo\Sprint 1`, StackRank: 5},
			{ID: 104, Title: "Audit log", State: core.StateNew, Type: core.PrimaryWorkItemType, AreaPath: `Demo\Api`, IterationPath: "Demo", StackRank: 30},
		},
		Areas: []core.AreaPath{
			{ID: 1, Name: "Demo", Path: "Demo", HasChildren: true},
			{ID: 2, Name: "Web", Path: `Demo\Web`},
			{ID: 3, Name: "Api", Path: `Demo\Api`},
		},
		Fields: []core.FieldDefinition{
			{Name: "Title", ReferenceName: core.FieldTitle, Type: "string"},
			{Name: "State", ReferenceName: core.FieldState, Type: "string"},
			{Name: "Tags", ReferenceName: core.FieldTags, Type: "string"},
		},
		IterationWorkItems: map[string][]int{
			"it-1": {103},
			"it-2": {101, 102},
		},
		SavedQueries: map[string][]int{
			"backlog": {104, 102},
		},
		LeadCycleTime: []core.LeadCycleTime{
			{WorkItemID: 90, WorkItemType: "Bug", State: core.StateClosed, CompletedDateSK: 20240305, CycleTimeDays: 2, LeadTimeDays: 5},
			{WorkItemID: 91, WorkItemType: core.PrimaryWorkItemType, State: core.StateClosed, CompletedDateSK: 20240305, CycleTimeDays: 4, LeadTimeDays: 9},
		},
		CurrentIteration: []core.AnalyticsWorkItem{
			{WorkItemID: 101, State: core.StateNew, DateValue: "2024-03-18", Count: 1},
			{WorkItemID: 102, State: core.StateNew, DateValue: "2024-03-18", Count: 1},
			{WorkItemID: 101, State: core.StateActive, DateValue: "2024-03-19", Count: 1},
			{WorkItemID: 102, State: core.StateNew, DateValue: "2024-03-19", Count: 1},
		},
		Snapshots: []core.AnalyticsWorkItem{
			{WorkItemID: 101, State: core.StateNew, DateValue: "2024-03-18", CreatedDate: "2024-03-01", Count: 1},
			{WorkItemID: 101, State: core.StateActive, DateValue: "2024-03-19", CreatedDate: "2024-03-01", Count: 1},
		},
	}
}
