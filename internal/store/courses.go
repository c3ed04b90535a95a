package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskion/taskion/internal/model"
)

const courseColumns = `id, title, semester, day_of_week, period, room, instructor,
	archived, updated_at, sync_state, last_synced_at`

// CourseFilter narrows ListCourses.
type CourseFilter struct {
	// IncludeArchived also returns archived courses
	IncludeArchived bool
}

// InsertCourse stores a new pending course under a fresh id.
func (db *DB) InsertCourse(ctx context.Context, req *model.NewCourse) (*model.Course, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	course := req.Course(uuid.NewString(), db.now())
	if err := upsertCourse(ctx, db.conn, course); err != nil {
		return nil, err
	}
	return course, nil
}

// UpdateCourse merges the supplied fields into an existing course and marks
// it pending.
func (db *DB) UpdateCourse(ctx context.Context, id string, patch *model.CoursePatch) (*model.Course, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var course *model.Course
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		c, err := getCourse(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(c, db.now())
		if err := upsertCourse(ctx, tx, c); err != nil {
			return err
		}
		if err := markPending(ctx, tx, model.KindCourse, id); err != nil {
			return err
		}
		course = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// GetCourse retrieves a single course, archived or not.
// Returns ErrNotFound if the course does not exist.
func (db *DB) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	return getCourse(ctx, db.conn, id)
}

// ListCourses returns courses ordered by most recently modified first.
func (db *DB) ListCourses(ctx context.Context, filter CourseFilter) ([]*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	if !filter.IncludeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	return scanCourses(rows)
}

// upsertCourse writes every field of c. On conflict the sync bookkeeping
// columns keep their stored values.
func upsertCourse(ctx context.Context, q queryer, c *model.Course) error {
	query := `
	INSERT INTO courses (` + courseColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		semester = excluded.semester,
		day_of_week = excluded.day_of_week,
		period = excluded.period,
		room = excluded.room,
		instructor = excluded.instructor,
		archived = excluded.archived,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.Semester,
		c.DayOfWeek,
		c.Period,
		nullString(c.Room),
		nullString(c.Instructor),
		boolInt(c.Archived),
		model.NormalizeTimestamp(c.UpdatedAt),
		stateOrPending(c.SyncState),
		nullString(c.LastSyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course %s: %w", c.ID, err)
	}
	return nil
}

func getCourse(ctx context.Context, q queryer, id string) (*model.Course, error) {
	row := q.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course %s: %w", id, err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(s scanner) (*model.Course, error) {
	var c model.Course
	var room, instructor, lastSynced sql.NullString
	var archived int
	var state string

	err := s.Scan(
		&c.ID,
		&c.Title,
		&c.Semester,
		&c.DayOfWeek,
		&c.Period,
		&room,
		&instructor,
		&archived,
		&c.UpdatedAt,
		&state,
		&lastSynced,
	)
	if err != nil {
		return nil, err
	}

	c.Room = stringPtr(room)
	c.Instructor = stringPtr(instructor)
	c.Archived = archived != 0
	c.SyncState = model.SyncState(state)
	c.LastSyncedAt = stringPtr(lastSynced)
	return &c, nil
}

func scanCourses(rows *sql.Rows) ([]*model.Course, error) {
	courses := []*model.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}
	return courses, nil
}
