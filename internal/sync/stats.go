package sync

import (
	"time"

	"github.com/taskion/taskion/internal/model"
)

// KindStats counts what a run did to one record kind.
type KindStats struct {
	Pushed   int `json:"pushed" yaml:"pushed"`
	Pulled   int `json:"pulled" yaml:"pulled"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Archived int `json:"archived" yaml:"archived"`
	Dropped  int `json:"dropped" yaml:"dropped"`
}

func (k *KindStats) add(o KindStats) {
	k.Pushed += o.Pushed
	k.Pulled += o.Pulled
	k.Skipped += o.Skipped
	k.Archived += o.Archived
	k.Dropped += o.Dropped
}

// Stats is the result of one run. A failed run still reports what it got
// done before the failure.
type Stats struct {
	Courses    KindStats `json:"courses" yaml:"courses"`
	Tasks      KindStats `json:"tasks" yaml:"tasks"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// For returns the counters of kind.
func (s *Stats) For(kind model.Kind) *KindStats {
	if kind == model.KindCourse {
		return &s.Courses
	}
	return &s.Tasks
}

// Total sums the counters of both kinds.
func (s *Stats) Total() KindStats {
	var t KindStats
	t.add(s.Courses)
	t.add(s.Tasks)
	return t
}

// Duration is the wall time of the run.
func (s *Stats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Run converts the stats into a history entry.
func (s *Stats) Run(err error) *model.SyncRun {
	total := s.Total()
	run := &model.SyncRun{
		StartedAt:  model.FormatTimestamp(s.StartedAt),
		FinishedAt: model.FormatTimestamp(s.FinishedAt),
		Outcome:    model.RunSucceeded,
		Pushed:     total.Pushed,
		Pulled:     total.Pulled,
		Skipped:    total.Skipped,
		Archived:   total.Archived,
		Dropped:    total.Dropped,
	}
	if err != nil {
		run.Outcome = model.RunFailed
		run.Error = err.Error()
	}
	return run
}
