package model

import (
	"strings"
	"time"
)

// Status labels with special meaning. Any other label is accepted as is.
const (
	DefaultStatus = "Not started"
	DoneStatus    = "Done"
)

// Task is a to-do item, usually attached to a course.
type Task struct {
	ID           string    `json:"id" yaml:"id"`
	CourseID     string    `json:"course_id" yaml:"course_id"`
	Title        string    `json:"title" yaml:"title"`
	DueDate      string    `json:"due_date" yaml:"due_date"`
	Status       string    `json:"status" yaml:"status"`
	CompletedAt  *string   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Archived     bool      `json:"archived" yaml:"archived"`
	UpdatedAt    string    `json:"updated_at" yaml:"updated_at"`
	SyncState    SyncState `json:"sync_state" yaml:"sync_state"`
	LastSyncedAt *string   `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
}

func (t *Task) RecordKind() Kind { return KindTask }
func (t *Task) RecordID() string { return t.ID }
func (t *Task) RecordTitle() string { return t.Title }
func (t *Task) LastModified() string { return t.UpdatedAt }
func (t *Task) State() SyncState { return t.SyncState }
func (t *Task) IsArchived() bool { return t.Archived }

// Done reports whether the task carries the done label.
func (t *Task) Done() bool {
	return strings.EqualFold(t.Status, DoneStatus)
}

// Validate checks the fields every stored task must have.
func (t *Task) Validate() error {
	if t.ID == "" {
		return invalid("id is required")
	}
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if t.Status == "" {
		return invalid("status is required")
	}
	return validateDueDate(t.DueDate)
}

// NewTask is the payload for creating a task. DueDate defaults to today and
// Status to DefaultStatus.
type NewTask struct {
	CourseID string `json:"course_id"`
	Title    string `json:"title" binding:"required"`
	DueDate  string `json:"due_date"`
	Status   string `json:"status"`
}

// Validate checks the creation payload.
func (n *NewTask) Validate() error {
	if err := validateTitle(n.Title); err != nil {
		return err
	}
	if n.DueDate == "" {
		return nil
	}
	return validateDueDate(n.DueDate)
}

// Task builds a pending task with the given id and modification time.
func (n *NewTask) Task(id string, now time.Time) *Task {
	t := &Task{
		ID:        id,
		CourseID:  n.CourseID,
		Title:     strings.TrimSpace(n.Title),
		DueDate:   n.DueDate,
		Status:    n.Status,
		UpdatedAt: FormatTimestamp(now),
		SyncState: SyncPending,
	}
	if t.DueDate == "" {
		t.DueDate = now.Local().Format(DateLayout)
	}
	if t.Status == "" {
		t.Status = DefaultStatus
	}
	if t.Done() {
		t.CompletedAt = StringPtr(FormatTimestamp(now))
	}
	return t
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	CourseID    *string `json:"course_id"`
	Title       *string `json:"title"`
	DueDate     *string `json:"due_date"`
	Status      *string `json:"status"`
	CompletedAt *string `json:"completed_at"`
}

// Validate checks only the supplied fields.
func (p *TaskPatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Status != nil && strings.TrimSpace(*p.Status) == "" {
		return invalid("status must not be empty")
	}
	if p.DueDate != nil {
		if err := validateDueDate(*p.DueDate); err != nil {
			return err
		}
	}
	if p.CompletedAt != nil && *p.CompletedAt != "" {
		if _, ok := ParseTimestamp(*p.CompletedAt); !ok {
			return invalid("completed_at must be an RFC3339 timestamp (got %q)", *p.CompletedAt)
		}
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *TaskPatch) Empty() bool {
	return p.CourseID == nil && p.Title == nil && p.DueDate == nil &&
		p.Status == nil && p.CompletedAt == nil
}

// Apply merges the patch into t and marks it pending at now. Moving a task
// to the done label stamps CompletedAt unless the patch sets it explicitly.
func (p *TaskPatch) Apply(t *Task, now time.Time) {
	if p.CourseID != nil {
		t.CourseID = *p.CourseID
	}
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Status != nil {
		t.Status = strings.TrimSpace(*p.Status)
	}
	switch {
	case p.CompletedAt != nil:
		t.CompletedAt = StringPtr(*p.CompletedAt)
	case p.Status != nil && t.Done() && t.CompletedAt == nil:
		t.CompletedAt = StringPtr(FormatTimestamp(now))
	}
	t.UpdatedAt = FormatTimestamp(now)
	t.SyncState = SyncPending
}

// ParseDueDate accepts a calendar date or a full RFC3339 timestamp.
func ParseDueDate(s string) (time.Time, bool) {
	if t, err := time.ParseInLocation(DateLayout, s, time.Local); err == nil {
		return t, true
	}
	return ParseTimestamp(s)
}

func validateDueDate(s string) error {
	if s == "" {
		return invalid("due_date is required")
	}
	if _, ok := ParseDueDate(s); !ok {
		return invalid("due_date must be YYYY-MM-DD or RFC3339 (got %q)", s)
	}
	return nil
}
