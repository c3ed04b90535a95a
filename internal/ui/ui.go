// Package ui renders CLI output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
	tsync "github.com/taskion/taskion/internal/sync"
)

// Printer writes styled output. Colors are dropped when the writer is not
// a terminal or NO_COLOR is set.
type Printer struct {
	out io.Writer
	r   *lipgloss.Renderer

	header  lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	heading lipgloss.Style
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{
		out:     w,
		r:       r,
		header:  r.NewStyle().Bold(true).Padding(0, 1),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		good:    r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		heading: r.NewStyle().Bold(true).Underline(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, p.good.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.out, p.warn.Render("!")+" "+fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.out, p.bad.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func (p *Printer) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.muted).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.header
			}
			return p.r.NewStyle().Padding(0, 1)
		})
}

// Courses prints courses as a table.
func (p *Printer) Courses(courses []*model.Course) {
	if len(courses) == 0 {
		fmt.Fprintln(p.out, p.muted.Render("no courses"))
		return
	}
	t := p.table("ID", "TITLE", "SEMESTER", "DAY", "PERIOD", "ROOM", "STATE")
	for _, c := range courses {
		period := ""
		if c.Period > 0 {
			period = strconv.Itoa(c.Period)
		}
		t.Row(shortID(c.ID), title(c.Title, c.Archived), c.Semester, c.DayOfWeek, period,
			model.Deref(c.Room), p.state(c.SyncState))
	}
	fmt.Fprintln(p.out, t.Render())
}

// Tasks prints tasks as a table. Overdue open tasks are highlighted
// relative to today.
func (p *Printer) Tasks(tasks []*model.Task, today string) {
	if len(tasks) == 0 {
		fmt.Fprintln(p.out, p.muted.Render("no tasks"))
		return
	}
	t := p.table("ID", "TITLE", "DUE", "STATUS", "COURSE", "STATE")
	for _, tk := range tasks {
		due := dueDate(tk.DueDate)
		if !tk.Done() && due != "" && due < today {
			due = p.bad.Render(due)
		}
		t.Row(shortID(tk.ID), title(tk.Title, tk.Archived), due, tk.Status, shortID(tk.CourseID), p.state(tk.SyncState))
	}
	fmt.Fprintln(p.out, t.Render())
}

// Status is the data shown by `taskion status`.
type Status struct {
	Database string         `json:"database" yaml:"database"`
	Remote   string         `json:"remote" yaml:"remote"`
	Interval time.Duration  `json:"-" yaml:"-"`
	Courses  *store.Counts  `json:"courses" yaml:"courses"`
	Tasks    *store.Counts  `json:"tasks" yaml:"tasks"`
	LastRun  *model.SyncRun `json:"last_run,omitempty" yaml:"last_run,omitempty"`
}

// Status prints a status summary.
func (p *Printer) Status(s *Status) {
	fmt.Fprintln(p.out, p.heading.Render("taskion"))
	fmt.Fprintf(p.out, "  database  %s\n", s.Database)
	fmt.Fprintf(p.out, "  remote    %s\n", s.Remote)
	if s.Interval > 0 {
		fmt.Fprintf(p.out, "  interval  %s\n", s.Interval)
	}
	for _, row := range []struct {
		name string
		c    *store.Counts
	}{{"courses", s.Courses}, {"tasks", s.Tasks}} {
		if row.c == nil {
			continue
		}
		pending := strconv.Itoa(row.c.Pending) + " pending"
		if row.c.Pending > 0 {
			pending = p.warn.Render(pending)
		}
		fmt.Fprintf(p.out, "  %-8s  %d active, %d archived, %s\n", row.name, row.c.Active, row.c.Archived, pending)
	}

	if s.LastRun == nil {
		fmt.Fprintln(p.out, "  last sync "+p.muted.Render("never"))
		return
	}
	outcome := p.good.Render(s.LastRun.Outcome)
	if s.LastRun.Outcome != model.RunSucceeded {
		outcome = p.bad.Render(s.LastRun.Outcome)
	}
	fmt.Fprintf(p.out, "  last sync %s at %s\n", outcome, s.LastRun.FinishedAt)
	if s.LastRun.Error != "" {
		fmt.Fprintf(p.out, "            %s\n", p.muted.Render(s.LastRun.Error))
	}
}

// SyncStats prints the result of a sync pass.
func (p *Printer) SyncStats(stats *tsync.Stats) {
	t := p.table("KIND", "PUSHED", "PULLED", "SKIPPED", "ARCHIVED", "DROPPED")
	for _, kind := range model.Kinds() {
		k := stats.For(kind)
		t.Row(kind.Plural(), strconv.Itoa(k.Pushed), strconv.Itoa(k.Pulled),
			strconv.Itoa(k.Skipped), strconv.Itoa(k.Archived), strconv.Itoa(k.Dropped))
	}
	fmt.Fprintln(p.out, t.Render())
	p.Success("sync finished in %s", stats.Duration().Round(time.Millisecond))
}

func (p *Printer) state(s model.SyncState) string {
	if s == model.SyncPending {
		return p.warn.Render(string(s))
	}
	return p.muted.Render(string(s))
}

// shortID trims uuids to their first block for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i == 8 && len(id) == 36 {
		return id[:8]
	}
	return id
}

func title(s string, archived bool) string {
	if archived {
		return s + " (archived)"
	}
	return s
}

func dueDate(s string) string {
	if t, ok := model.ParseDueDate(s); ok {
		return t.Format(model.DateLayout)
	}
	return s
}
