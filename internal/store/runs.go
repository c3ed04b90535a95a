package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskion/taskion/internal/model"
)

const runColumns = `id, started_at, finished_at, outcome, error,
	pushed, pulled, skipped, archived, dropped`

// RecordSyncRun appends run to the history. An empty ID is filled in.
func (db *DB) RecordSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `INSERT INTO sync_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Outcome,
		nullString(model.StringPtr(run.Error)),
		run.Pushed,
		run.Pulled,
		run.Skipped,
		run.Archived,
		run.Dropped,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs first. limit <= 0 means 20.
func (db *DB) ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.SyncRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// LastSyncRun returns the most recent run, or ErrNotFound if none ran yet.
func (db *DB) LastSyncRun(ctx context.Context) (*model.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC LIMIT 1`
	run, err := scanRun(db.conn.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}
	return run, nil
}

func scanRun(s scanner) (*model.SyncRun, error) {
	var run model.SyncRun
	var errText sql.NullString
	err := s.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Outcome,
		&errText,
		&run.Pushed,
		&run.Pulled,
		&run.Skipped,
		&run.Archived,
		&run.Dropped,
	)
	if err != nil {
		return nil, err
	}
	run.Error = errText.String
	return &run, nil
}
