package model

import (
	"strings"
	"time"
)

// MaxTitleLength bounds titles of both kinds.
const MaxTitleLength = 500

// Course is a class the user attends.
type Course struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Semester     string    `json:"semester" yaml:"semester"`
	DayOfWeek    string    `json:"day_of_week" yaml:"day_of_week"`
	Period       int       `json:"period" yaml:"period"`
	Room         *string   `json:"room,omitempty" yaml:"room,omitempty"`
	Instructor   *string   `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	Archived     bool      `json:"archived" yaml:"archived"`
	UpdatedAt    string    `json:"updated_at" yaml:"updated_at"`
	SyncState    SyncState `json:"sync_state" yaml:"sync_state"`
	LastSyncedAt *string   `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
}

func (c *Course) RecordKind() Kind { return KindCourse }
func (c *Course) RecordID() string { return c.ID }
func (c *Course) RecordTitle() string { return c.Title }
func (c *Course) LastModified() string { return c.UpdatedAt }
func (c *Course) State() SyncState { return c.SyncState }
func (c *Course) IsArchived() bool { return c.Archived }

// Validate checks the fields every stored course must have.
func (c *Course) Validate() error {
	if c.ID == "" {
		return invalid("id is required")
	}
	return validateCourseFields(c.Title, c.Period)
}

// NewCourse is the payload for creating a course.
type NewCourse struct {
	Title      string  `json:"title" binding:"required"`
	Semester   string  `json:"semester"`
	DayOfWeek  string  `json:"day_of_week"`
	Period     int     `json:"period"`
	Room       *string `json:"room"`
	Instructor *string `json:"instructor"`
}

// Validate checks the creation payload.
func (n *NewCourse) Validate() error {
	return validateCourseFields(n.Title, n.Period)
}

// Course builds a pending course with the given id and modification time.
func (n *NewCourse) Course(id string, now time.Time) *Course {
	return &Course{
		ID:         id,
		Title:      strings.TrimSpace(n.Title),
		Semester:   n.Semester,
		DayOfWeek:  n.DayOfWeek,
		Period:     n.Period,
		Room:       n.Room,
		Instructor: n.Instructor,
		UpdatedAt:  FormatTimestamp(now),
		SyncState:  SyncPending,
	}
}

// CoursePatch carries a partial update. Nil fields are left untouched.
type CoursePatch struct {
	Title      *string `json:"title"`
	Semester   *string `json:"semester"`
	DayOfWeek  *string `json:"day_of_week"`
	Period     *int    `json:"period"`
	Room       *string `json:"room"`
	Instructor *string `json:"instructor"`
}

// Validate checks only the supplied fields.
func (p *CoursePatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Period != nil && *p.Period < 0 {
		return invalid("period must not be negative (got %d)", *p.Period)
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p *CoursePatch) Empty() bool {
	return p.Title == nil && p.Semester == nil && p.DayOfWeek == nil &&
		p.Period == nil && p.Room == nil && p.Instructor == nil
}

// Apply merges the patch into c and marks it pending at now.
func (p *CoursePatch) Apply(c *Course, now time.Time) {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Semester != nil {
		c.Semester = *p.Semester
	}
	if p.DayOfWeek != nil {
		c.DayOfWeek = *p.DayOfWeek
	}
	if p.Period != nil {
		c.Period = *p.Period
	}
	if p.Room != nil {
		c.Room = StringPtr(*p.Room)
	}
	if p.Instructor != nil {
		c.Instructor = StringPtr(*p.Instructor)
	}
	c.UpdatedAt = FormatTimestamp(now)
	c.SyncState = SyncPending
}

func validateCourseFields(title string, period int) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	if period < 0 {
		return invalid("period must not be negative (got %d)", period)
	}
	return nil
}

func validateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title is required")
	}
	if len(title) > MaxTitleLength {
		return invalid("title must be %d characters or less (got %d)", MaxTitleLength, len(title))
	}
	return nil
}
