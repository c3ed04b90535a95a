package notion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/remote"
)

// Property names of the courses database.
const (
	courseName       = "Name"
	courseSemester   = "Semester"
	courseDay        = "Day"
	coursePeriod     = "Period"
	courseRoom       = "Room"
	courseInstructor = "Instructor"
	courseIDProp     = "course_id"
)

// Property names of the tasks database.
const (
	taskTitle       = "Title"
	taskDueDate     = "Due Date"
	taskStatus      = "Status"
	taskCourse      = "Course"
	taskCompletedAt = "completed_at"
	taskIDProp      = "todo_id"
)

// archivedProp is a checkbox on the tasks database. Course databases may
// carry it too; without it course archive state is the page's trash flag.
const archivedProp = "is_archived"

const listSeparator = ", "

// idProperty names the property that mirrors the local record id.
func idProperty(kind model.Kind) string {
	if kind == model.KindCourse {
		return courseIDProp
	}
	return taskIDProp
}

// recordID returns the mirrored id, or the page id for pages that were
// created remotely and never pushed.
func recordID(p *Page, kind model.Kind) string {
	if id, ok := p.text(idProperty(kind)); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return p.ID
}

func archived(p *Page) bool {
	if v, ok := p.checkbox(archivedProp); ok {
		return v
	}
	return p.Archived
}

func requiredTitle(p *Page, key string) (string, error) {
	title, ok := p.text(key)
	if !ok || strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("page %s: %q: %w", p.ID, key, remote.ErrMissingProperty)
	}
	return strings.TrimSpace(title), nil
}

func pageToCourse(p *Page) (*model.Course, error) {
	title, err := requiredTitle(p, courseName)
	if err != nil {
		return nil, err
	}

	c := &model.Course{
		ID:        recordID(p, model.KindCourse),
		Title:     title,
		Archived:  archived(p),
		UpdatedAt: model.NormalizeTimestamp(p.lastEdited()),
	}
	if names, ok := p.multiSelect(courseSemester); ok {
		c.Semester = strings.Join(names, listSeparator)
	}
	if day, ok := p.option(courseDay); ok {
		c.DayOfWeek = day
	}
	if period, ok := p.integer(coursePeriod); ok {
		c.Period = period
	}
	if room, ok := p.text(courseRoom); ok {
		c.Room = model.StringPtr(room)
	}
	if names, ok := p.multiSelect(courseInstructor); ok {
		c.Instructor = model.StringPtr(strings.Join(names, listSeparator))
	}
	return c, nil
}

// pageToTask translates a task page. courseFor maps a related page id to
// the local course id.
func pageToTask(p *Page, today time.Time, courseFor func(pageID string) string) (*model.Task, error) {
	title, err := requiredTitle(p, taskTitle)
	if err != nil {
		return nil, err
	}

	t := &model.Task{
		ID:        recordID(p, model.KindTask),
		Title:     title,
		DueDate:   today.Format(model.DateLayout),
		Status:    model.DefaultStatus,
		Archived:  archived(p),
		UpdatedAt: model.NormalizeTimestamp(p.lastEdited()),
	}
	if due, ok := p.date(taskDueDate); ok {
		t.DueDate = due
	}
	if status, ok := p.option(taskStatus); ok {
		t.Status = status
	}
	if pageID, ok := p.relation(taskCourse); ok {
		t.CourseID = courseFor(pageID)
	}
	if done, ok := p.date(taskCompletedAt); ok {
		t.CompletedAt = &done
	}
	return t, nil
}

// courseProperties builds the page properties of c. The archive checkbox
// is only included when the database is known to have one.
func courseProperties(c *model.Course, withArchiveProp bool) map[string]Property {
	props := map[string]Property{
		courseName:     Title(c.Title),
		courseSemester: MultiSelect(splitList(c.Semester)...),
		courseDay:      Select(c.DayOfWeek),
		courseIDProp:   RichText(c.ID),
	}
	if withArchiveProp {
		props[archivedProp] = Checkbox(c.Archived)
	}
	if c.Period > 0 {
		props[coursePeriod] = MultiSelect(strconv.Itoa(c.Period))
	}
	if c.Room != nil {
		props[courseRoom] = RichText(*c.Room)
	}
	if c.Instructor != nil {
		props[courseInstructor] = MultiSelect(splitList(*c.Instructor)...)
	}
	return props
}

// taskProperties builds the page properties of t. coursePageID is the
// related course page, or empty to leave the relation untouched.
func taskProperties(t *model.Task, coursePageID string) map[string]Property {
	props := map[string]Property{
		taskTitle:    Title(t.Title),
		taskDueDate:  Date(t.DueDate),
		taskStatus:   Status(t.Status),
		archivedProp: Checkbox(t.Archived),
		taskIDProp:   RichText(t.ID),
	}
	if t.CompletedAt != nil {
		props[taskCompletedAt] = Date(*t.CompletedAt)
	}
	if coursePageID != "" {
		props[taskCourse] = Relation(coursePageID)
	}
	return props
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
