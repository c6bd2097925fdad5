// Package storage persists move requests in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"devopsdash/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; the worker and the server each hold their own repository
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateMoveRequests stores reqs as pending in one transaction and returns
// them with timestamps and status filled in.
func (r *SQLiteRepository) CreateMoveRequests(ctx context.Context, reqs []core.MoveRequest) ([]core.MoveRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO move_requests
			(id, organization, project, team, work_item_id, iteration_id, iteration_path, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	out := make([]core.MoveRequest, 0, len(reqs))
	for _, m := range reqs {
		m.Status = core.MovePending
		m.Error = ""
		m.CreatedAt, m.UpdatedAt = now, now
		_, err := stmt.ExecContext(ctx, m.ID, m.Organization, m.Project, m.Team, m.WorkItemID,
			m.IterationID, m.IterationPath, string(m.Status), now.Format(timeLayout), now.Format(timeLayout))
		if err != nil {
			return nil, fmt.Errorf("insert move request %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit move requests: %w", err)
	}

	slog.InfoContext(ctx, "Move requests recorded", "count", len(out))
	return out, nil
}

const selectMove = `
	SELECT id, organization, project, team, work_item_id, iteration_id, iteration_path, status, error, created_at, updated_at
	FROM move_requests`

func (r *SQLiteRepository) GetMoveRequest(ctx context.Context, id string) (core.MoveRequest, error) {
	row := r.db.QueryRowContext(ctx, selectMove+` WHERE id = ?`, id)
	m, err := scanMove(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MoveRequest{}, fmt.Errorf("%w: %s", core.ErrMoveNotFound, id)
	}
	if err != nil {
		return core.MoveRequest{}, fmt.Errorf("get move request %s: %w", id, err)
	}
	return m, nil
}

// PendingMoveRequests returns the oldest pending requests created before
// olderThan, which keeps the sweep away from requests still in flight on the queue.
func (r *SQLiteRepository) PendingMoveRequests(ctx context.Context, olderThan time.Time, limit int) ([]core.MoveRequest, error) {
	rows, err := r.db.QueryContext(ctx, selectMove+`
		WHERE status = ? AND created_at < ?
		ORDER BY created_at, id
		LIMIT ?`, string(core.MovePending), olderThan.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending move requests: %w", err)
	}
	defer rows.Close()

	var out []core.MoveRequest
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scan move request: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate move requests: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkApplied(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, core.MoveApplied, "")
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.setStatus(ctx, id, core.MoveFailed, reason)
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id string, status core.MoveStatus, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE move_requests SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), reason, r.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark move request %s %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrMoveNotFound, id)
	}
	slog.InfoContext(ctx, "Move request updated", "move_request_id", id, "status", status)
	return nil
}

// CountByStatus is used for startup diagnostics.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[core.MoveStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM move_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count move requests: %w", err)
	}
	defer rows.Close()

	out := make(map[core.MoveStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[core.MoveStatus(status)] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMove(s scanner) (core.MoveRequest, error) {
	var (
		m                core.MoveRequest
		status           string
		created, updated string
	)
	if err := s.Scan(&m.ID, &m.Organization, &m.Project, &m.Team, &m.WorkItemID,
		&m.IterationID, &m.IterationPath, &status, &m.Error, &created, &updated); err != nil {
		return core.MoveRequest{}, err
	}
	m.Status = core.MoveStatus(status)

	var err error
	if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return core.MoveRequest{}, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return core.MoveRequest{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return m, nil
}
