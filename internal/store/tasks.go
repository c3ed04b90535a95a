package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskion/taskion/internal/model"
)

const taskColumns = `id, course_id, title, due_date, status, completed_at,
	archived, updated_at, sync_state, last_synced_at`

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	CourseID        string
	Status          string
	IncludeArchived bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// InsertTask stores a new pending task under a fresh id.
func (db *DB) InsertTask(ctx context.Context, req *model.NewTask) (*model.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := req.Task(uuid.NewString(), db.now())
	if err := upsertTask(ctx, db.conn, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask merges the supplied fields into an existing task and marks it
// pending.
func (db *DB) UpdateTask(ctx context.Context, id string, patch *model.TaskPatch) (*model.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var task *model.Task
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(t, db.now())
		if err := upsertTask(ctx, tx, t); err != nil {
			return err
		}
		if err := markPending(ctx, tx, model.KindTask, id); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask retrieves a single task, archived or not.
// Returns ErrNotFound if the task does not exist.
func (db *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return getTask(ctx, db.conn, id)
}

// ListTasks returns tasks ordered by most recently modified first.
func (db *DB) ListTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	var conditions []string
	var args []any

	if !filter.IncludeArchived {
		conditions = append(conditions, "archived = 0")
	}
	if filter.CourseID != "" {
		conditions = append(conditions, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// upsertTask writes every field of t. On conflict the sync bookkeeping
// columns keep their stored values.
func upsertTask(ctx context.Context, q queryer, t *model.Task) error {
	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		course_id = excluded.course_id,
		title = excluded.title,
		due_date = excluded.due_date,
		status = excluded.status,
		completed_at = excluded.completed_at,
		archived = excluded.archived,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		t.ID,
		t.CourseID,
		t.Title,
		t.DueDate,
		t.Status,
		nullString(t.CompletedAt),
		boolInt(t.Archived),
		model.NormalizeTimestamp(t.UpdatedAt),
		stateOrPending(t.SyncState),
		nullString(t.LastSyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}
	return nil
}

func getTask(ctx context.Context, q queryer, id string) (*model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var completedAt, lastSynced sql.NullString
	var archived int
	var state string

	err := s.Scan(
		&t.ID,
		&t.CourseID,
		&t.Title,
		&t.DueDate,
		&t.Status,
		&completedAt,
		&archived,
		&t.UpdatedAt,
		&state,
		&lastSynced,
	)
	if err != nil {
		return nil, err
	}

	t.CompletedAt = stringPtr(completedAt)
	t.Archived = archived != 0
	t.SyncState = model.SyncState(state)
	t.LastSyncedAt = stringPtr(lastSynced)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	tasks := []*model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
