// Package devops defines the ports the dashboard uses to reach a work
// tracking service, plus the pure helpers shared by every adapter.
package devops

import (
	"context"

	"devopsdash/internal/core"
)

// Ports for outbound adapters.
type (
	IterationReader interface {
		// ListIterations returns the team's iterations with Backlog prepended.
		ListIterations(ctx context.Context) ([]core.Iteration, error)
		// IterationWorkItemIDs returns the ids planned into one iteration.
		IterationWorkItemIDs(ctx context.Context, iterationID string) ([]int, error)
	}

	StateReader interface {
		// ListStates returns one work item type's visible states framed by the
		// New and Closed sentinels.
		ListStates(ctx context.Context, processID, workItemTypeID string) ([]core.State, error)
		// ListProjectStates merges the states of every type in the project's process.
		ListProjectStates(ctx context.Context) (ProjectStates, error)
	}

	WorkItemQuerier interface {
		// QueryWorkItemIDs runs a WIQL query text.
		QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error)
		// SavedQueryWorkItemIDs runs a stored query by id.
		SavedQueryWorkItemIDs(ctx context.Context, queryID string) ([]int, error)
		// AreaWorkItemIDs runs the area path/state exclusion query.
		AreaWorkItemIDs(ctx context.Context, filter core.AreaFilter) ([]int, error)
	}

	WorkItemReader interface {
		// GetWorkItems fetches the given ids in batches. Either every batch
		// succeeds or an error is returned with no items.
		GetWorkItems(ctx context.Context, ids []int) ([]core.WorkItem, error)
	}

	WorkItemUpdater interface {
		UpdateWorkItem(ctx context.Context, id int, ops []core.PatchOperation, validateOnly bool) (core.WorkItem, error)
	}

	AreaReader interface {
		ListAreaPaths(ctx context.Context) ([]core.AreaPath, error)
	}

	FieldReader interface {
		ListFields(ctx context.Context) ([]core.FieldDefinition, error)
	}

	AnalyticsReader interface {
		LeadCycleTime(ctx context.Context) ([]core.LeadCycleTime, error)
		CurrentIterationSnapshots(ctx context.Context) ([]core.AnalyticsWorkItem, error)
		Snapshots(ctx context.Context) ([]core.AnalyticsWorkItem, error)
	}

	// Client is everything one organization/project connection offers.
	Client interface {
		IterationReader
		StateReader
		WorkItemQuerier
		WorkItemReader
		WorkItemUpdater
		AreaReader
		FieldReader
		AnalyticsReader
	}

	// Factory builds a Client for one set of credentials. Handlers call it per
	// request instead of holding a shared client.
	Factory interface {
		NewClient(creds core.Credentials) (Client, error)
	}

	// FactoryFunc adapts a function to Factory.
	FactoryFunc func(creds core.Credentials) (Client, error)
)

func (f FactoryFunc) NewClient(creds core.Credentials) (Client, error) {
	return f(creds)
}
