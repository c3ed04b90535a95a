package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid record")

// Kind names one of the synchronized collections.
type Kind string

const (
	KindCourse Kind = "course"
	KindTask   Kind = "task"
)

// Kinds returns every kind in sync order. Courses come first so a task's
// course reference is more likely to be reconciled already.
func Kinds() []Kind {
	return []Kind{KindCourse, KindTask}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCourse || k == KindTask
}

// Plural is used for table names, routes and log fields.
func (k Kind) Plural() string {
	return string(k) + "s"
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts singular or plural names ("task", "tasks").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "course", "courses":
		return KindCourse, nil
	case "task", "tasks", "todo", "todos":
		return KindTask, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
}

// SyncState tracks whether local edits have been confirmed remotely.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// Record is the part of a course or task the sync engine needs.
type Record interface {
	RecordKind() Kind
	RecordID() string
	RecordTitle() string
	// LastModified returns the raw last-modified timestamp.
	LastModified() string
	State() SyncState
	IsArchived() bool
}

// TimestampLayout is fixed width so lexical order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DateLayout is the calendar date form used for due dates.
const DateLayout = "2006-01-02"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses an RFC3339 timestamp to an absolute instant.
// The second result is false when s is empty or cannot be parsed; callers
// treat such values as unknown.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeTimestamp rewrites any RFC3339 timestamp in TimestampLayout.
// Unparsable values are returned unchanged.
func NormalizeTimestamp(s string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	return FormatTimestamp(t)
}

// NewerThan reports whether timestamp a is strictly after b. It is false
// whenever either side is unknown.
func NewerThan(a, b string) bool {
	ta, ok := ParseTimestamp(a)
	if !ok {
		return false
	}
	tb, ok := ParseTimestamp(b)
	if !ok {
		return false
	}
	return ta.After(tb)
}

// Today returns the current local calendar date.
func Today() string {
	return time.Now().Format(DateLayout)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *p, or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
