package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"devopsdash/internal/amqp"
	"devopsdash/internal/core"
)

// Mover records iteration moves and hands them to the worker over AMQP, or
// applies them inline with the caller's credentials when no publisher is set.
type Mover struct {
	store     MoveStore
	publisher amqp.Publisher
	newID     func() string
}

func NewMover(store MoveStore, publisher amqp.Publisher) *Mover {
	return &Mover{
		store:     store,
		publisher: publisher,
		newID:     uuid.NewString,
	}
}

// Move reassigns ids to the iteration identified by iterationID ("current"
// resolves the sprint in progress, "backlog" the project root). The returned
// requests carry their status: pending when queued, applied or failed when
// run inline.
func (m *Mover) Move(ctx context.Context, s Scope, ids []int, iterationID string) ([]core.MoveRequest, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, core.ErrNoWorkItems
	}
	if strings.TrimSpace(iterationID) == "" {
		return nil, core.ErrMissingIteration
	}

	iterations, err := s.Client.ListIterations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	it, err := core.FindIteration(iterations, iterationID)
	if err != nil {
		return nil, err
	}
	if _, err := core.MoveToIteration(it.Path); err != nil {
		return nil, err
	}

	reqs := lo.Map(ids, func(id int, _ int) core.MoveRequest {
		return core.MoveRequest{
			ID:            m.newID(),
			Organization:  s.Creds.Organization,
			Project:       s.Creds.Project,
			Team:          s.Creds.Team,
			WorkItemID:    id,
			IterationID:   it.Ref(),
			IterationPath: it.Path,
		}
	})

	// record first so a lost message or a crash still leaves a trace for the sweep
	reqs, err = m.store.CreateMoveRequests(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("save move requests: %w", err)
	}

	if m.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, applying moves inline", "count", len(reqs))
		for i, req := range reqs {
			if reqs[i], err = applyMove(ctx, m.store, s.Client, req); err != nil {
				return reqs, err
			}
		}
		return reqs, nil
	}

	for _, req := range reqs {
		if err := m.publisher.PublishMove(ctx, amqp.NewMoveMessage(req.ID, req.WorkItemID)); err != nil {
			// left pending; the worker sweep picks it up
			slog.ErrorContext(ctx, "Failed to publish move message",
				"move_request_id", req.ID,
				"work_item_id", req.WorkItemID,
				"error", err)
		}
	}
	return reqs, nil
}

// Status returns one recorded move request.
func (m *Mover) Status(ctx context.Context, id string) (core.MoveRequest, error) {
	return m.store.GetMoveRequest(ctx, id)
}
