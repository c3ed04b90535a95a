package store

import (
	"context"
	"fmt"

	"github.com/taskion/taskion/internal/model"
)

// Counts summarizes one table for status output.
type Counts struct {
	Total    int `json:"total" yaml:"total"`
	Active   int `json:"active" yaml:"active"`
	Archived int `json:"archived" yaml:"archived"`
	Pending  int `json:"pending" yaml:"pending"`
	Synced   int `json:"synced" yaml:"synced"`
}

// ListActive returns non-archived records of kind, most recently modified first.
func (db *DB) ListActive(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	return db.listRecords(ctx, kind, false)
}

// ListAll returns every record of kind, archived ones included.
func (db *DB) ListAll(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	return db.listRecords(ctx, kind, true)
}

func (db *DB) listRecords(ctx context.Context, kind model.Kind, includeArchived bool) ([]model.Record, error) {
	switch kind {
	case model.KindCourse:
		courses, err := db.ListCourses(ctx, CourseFilter{IncludeArchived: includeArchived})
		if err != nil {
			return nil, err
		}
		records := make([]model.Record, len(courses))
		for i, c := range courses {
			records[i] = c
		}
		return records, nil
	case model.KindTask:
		tasks, err := db.ListTasks(ctx, TaskFilter{IncludeArchived: includeArchived})
		if err != nil {
			return nil, err
		}
		records := make([]model.Record, len(tasks))
		for i, t := range tasks {
			records[i] = t
		}
		return records, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// FindByID returns the record of kind with the given id.
// Returns ErrNotFound if it does not exist.
func (db *DB) FindByID(ctx context.Context, kind model.Kind, id string) (model.Record, error) {
	switch kind {
	case model.KindCourse:
		return db.GetCourse(ctx, id)
	case model.KindTask:
		return db.GetTask(ctx, id)
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// Upsert inserts rec if its id is unknown, otherwise overwrites every
// content field. The sync bookkeeping of an existing row is left alone; a
// new row takes the record's state, defaulting to pending.
func (db *DB) Upsert(ctx context.Context, rec model.Record) error {
	switch r := rec.(type) {
	case *model.Course:
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid course: %w", err)
		}
		return upsertCourse(ctx, db.conn, r)
	case *model.Task:
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid task: %w", err)
		}
		return upsertTask(ctx, db.conn, r)
	}
	return fmt.Errorf("unsupported record type %T", rec)
}

// Archive hides a record locally and queues the change for the next push.
// It reports false when no record has the id.
func (db *DB) Archive(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return db.setArchived(ctx, kind, id, true)
}

// Unarchive restores a hidden record and queues the change for the next push.
// It reports false when no record has the id.
func (db *DB) Unarchive(ctx context.Context, kind model.Kind, id string) (bool, error) {
	return db.setArchived(ctx, kind, id, false)
}

func (db *DB) setArchived(ctx context.Context, kind model.Kind, id string, archived bool) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	query := `UPDATE ` + table + `
	SET archived = ?, updated_at = ?, sync_state = ?
	WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, query, boolInt(archived), db.timestamp(), string(model.SyncPending), id)
	if err != nil {
		return false, fmt.Errorf("failed to update archived flag on %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// MarkSynced records that the record now matches the remote copy as of at.
func (db *DB) MarkSynced(ctx context.Context, kind model.Kind, id string, at string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET sync_state = ?, last_synced_at = ? WHERE id = ?`
	res, err := db.conn.ExecContext(ctx, query, string(model.SyncSynced), at, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// ArchiveRemoved archives a record that disappeared upstream. Neither
// updated_at nor the sync bookkeeping change, so the archive is not pushed
// back to the remote.
func (db *DB) ArchiveRemoved(ctx context.Context, kind model.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET archived = 1 WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to archive removed %s %s: %w", kind, id, err)
	}
	return nil
}

// Counts returns row totals for kind.
func (db *DB) Counts(ctx context.Context, kind model.Kind) (*Counts, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN archived = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN archived = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN sync_state = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN sync_state = 'synced' THEN 1 ELSE 0 END), 0)
	FROM ` + table

	var c Counts
	err = db.conn.QueryRowContext(ctx, query).Scan(&c.Total, &c.Active, &c.Archived, &c.Pending, &c.Synced)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return &c, nil
}

// MarkPending queues an existing record for the next push.
func (db *DB) MarkPending(ctx context.Context, kind model.Kind, id string) error {
	return markPending(ctx, db.conn, kind, id)
}

func markPending(ctx context.Context, q queryer, kind model.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := `UPDATE ` + table + ` SET sync_state = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, string(model.SyncPending), id); err != nil {
		return fmt.Errorf("failed to mark %s %s pending: %w", kind, id, err)
	}
	return nil
}
