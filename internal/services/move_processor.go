package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"devopsdash/internal/core"
	"devopsdash/internal/devops"
)

// MoveStore is the persistence the move flow needs.
type MoveStore interface {
	CreateMoveRequests(ctx context.Context, reqs []core.MoveRequest) ([]core.MoveRequest, error)
	GetMoveRequest(ctx context.Context, id string) (core.MoveRequest, error)
	PendingMoveRequests(ctx context.Context, olderThan time.Time, limit int) ([]core.MoveRequest, error)
	MarkApplied(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// MoveProcessorConfig holds configuration for the pending request sweep.
type MoveProcessorConfig struct {
	// PollInterval is how often pending requests are swept (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of requests applied per sweep (default: 20)
	BatchSize int

	// MinAge keeps the sweep away from requests that are still on the queue (default: 30s)
	MinAge time.Duration
}

func DefaultMoveProcessorConfig() MoveProcessorConfig {
	return MoveProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    20,
		MinAge:       30 * time.Second,
	}
}

// MoveProcessor applies recorded move requests with the service token.
type MoveProcessor struct {
	store   MoveStore
	factory devops.Factory
	token   string
	config  MoveProcessorConfig
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMoveProcessor(store MoveStore, factory devops.Factory, token string, config MoveProcessorConfig) *MoveProcessor {
	return &MoveProcessor{
		store:   store,
		factory: factory,
		token:   token,
		config:  config,
		now:     time.Now,
	}
}

// Apply patches the work item of req and records the outcome. A remote
// failure marks the request failed and is not returned as an error; only
// storage errors are, so callers can retry them.
func (p *MoveProcessor) Apply(ctx context.Context, req core.MoveRequest) (core.MoveRequest, error) {
	if req.Done() {
		slog.DebugContext(ctx, "Move request already settled",
			"move_request_id", req.ID, "status", req.Status)
		return req, nil
	}

	client, err := p.factory.NewClient(req.Credentials(p.token))
	if err != nil {
		return markFailed(ctx, p.store, req, fmt.Errorf("build devops client: %w", err))
	}
	return applyMove(ctx, p.store, client, req)
}

// ApplyByID loads a request and applies it.
func (p *MoveProcessor) ApplyByID(ctx context.Context, id string) (core.MoveRequest, error) {
	req, err := p.store.GetMoveRequest(ctx, id)
	if err != nil {
		return core.MoveRequest{}, fmt.Errorf("load move request: %w", err)
	}
	return p.Apply(ctx, req)
}

func applyMove(ctx context.Context, store MoveStore, client devops.WorkItemUpdater, req core.MoveRequest) (core.MoveRequest, error) {
	ops, err := core.MoveToIteration(req.IterationPath)
	if err != nil {
		return markFailed(ctx, store, req, err)
	}
	if _, err := client.UpdateWorkItem(ctx, req.WorkItemID, ops, false); err != nil {
		return markFailed(ctx, store, req, err)
	}
	if err := store.MarkApplied(ctx, req.ID); err != nil {
		return req, fmt.Errorf("mark move request applied: %w", err)
	}

	slog.InfoContext(ctx, "Moved work item",
		"move_request_id", req.ID,
		"work_item_id", req.WorkItemID,
		"iteration_path", req.IterationPath)

	req.Status = core.MoveApplied
	req.Error = ""
	return req, nil
}

func markFailed(ctx context.Context, store MoveStore, req core.MoveRequest, cause error) (core.MoveRequest, error) {
	slog.WarnContext(ctx, "Move failed",
		"move_request_id", req.ID,
		"work_item_id", req.WorkItemID,
		"error", cause)

	if err := store.MarkFailed(ctx, req.ID, cause.Error()); err != nil {
		return req, fmt.Errorf("mark move request failed: %w", err)
	}
	req.Status = core.MoveFailed
	req.Error = cause.Error()
	return req, nil
}

// ProcessPending applies one batch of requests left pending, e.g. because
// their queue message was lost. It returns how many were applied and failed.
func (p *MoveProcessor) ProcessPending(ctx context.Context) (applied, failed int, err error) {
	cutoff := p.now().Add(-p.config.MinAge)
	reqs, err := p.store.PendingMoveRequests(ctx, cutoff, p.config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending move requests: %w", err)
	}
	if len(reqs) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending move requests", "count", len(reqs))

	for _, req := range reqs {
		if ctx.Err() != nil {
			return applied, failed, ctx.Err()
		}
		out, err := p.Apply(ctx, req)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to settle move request",
				"move_request_id", req.ID, "error", err)
			continue
		}
		switch out.Status {
		case core.MoveApplied:
			applied++
		case core.MoveFailed:
			failed++
		}
	}
	return applied, failed, nil
}

// Start begins the sweep loop. Returns an error if already running.
func (p *MoveProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("move processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Move processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (p *MoveProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Move processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Move processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *MoveProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MoveProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := p.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending move sweep failed", "error", err)
			}
		}
	}
}
