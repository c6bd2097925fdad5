// Package worker applies queued iteration moves.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"devopsdash/internal/amqp"
	"devopsdash/internal/core"
	"devopsdash/internal/services"
)

// StatusCounter reports how many move requests are in each state.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[core.MoveStatus]int, error)
}

// MoveWorker handles move messages from AMQP and the startup recovery of
// requests whose messages never arrived.
type MoveWorker struct {
	counter   StatusCounter
	processor *services.MoveProcessor
}

func NewMoveWorker(counter StatusCounter, processor *services.MoveProcessor) *MoveWorker {
	return &MoveWorker{counter: counter, processor: processor}
}

// HandleMoveMessage applies the request named by msg. Unknown requests are
// dropped; storage errors are returned so the message is requeued.
func (w *MoveWorker) HandleMoveMessage(ctx context.Context, msg amqp.MoveMessage) error {
	slog.InfoContext(ctx, "Processing move message",
		"move_request_id", msg.RequestID,
		"work_item_id", msg.WorkItemID)

	req, err := w.processor.ApplyByID(ctx, msg.RequestID)
	if errors.Is(err, core.ErrMoveNotFound) {
		slog.WarnContext(ctx, "Dropping message for unknown move request", "move_request_id", msg.RequestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply move request: %w", err)
	}
	if req.WorkItemID != msg.WorkItemID {
		slog.WarnContext(ctx, "Move message work item differs from stored request",
			"move_request_id", req.ID,
			"message_work_item_id", msg.WorkItemID,
			"work_item_id", req.WorkItemID)
	}
	return nil
}

// ProcessPendingMoves is the backup path for lost messages.
func (w *MoveWorker) ProcessPendingMoves(ctx context.Context) error {
	_, _, err := w.processor.ProcessPending(ctx)
	return err
}

// StartupCheck logs the request backlog and settles what is already overdue.
func (w *MoveWorker) StartupCheck(ctx context.Context) error {
	counts, err := w.counter.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count move requests for startup check: %w", err)
	}

	slog.InfoContext(ctx, "Move requests on startup",
		"pending", counts[core.MovePending],
		"applied", counts[core.MoveApplied],
		"failed", counts[core.MoveFailed])

	if counts[core.MovePending] == 0 {
		return nil
	}

	applied, failed, err := w.processor.ProcessPending(ctx)
	if err != nil {
		return fmt.Errorf("process pending moves on startup: %w", err)
	}
	slog.InfoContext(ctx, "Startup move check completed",
		"applied", applied,
		"failed", failed)
	return nil
}
