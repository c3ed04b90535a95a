package model

// Outcomes recorded for a sync run.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// SyncRun is one finished sync invocation as kept in the history table.
// Counters are totals over both kinds.
type SyncRun struct {
	ID         string `json:"id" yaml:"id"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	FinishedAt string `json:"finished_at" yaml:"finished_at"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	Pushed     int    `json:"pushed" yaml:"pushed"`
	Pulled     int    `json:"pulled" yaml:"pulled"`
	Skipped    int    `json:"skipped" yaml:"skipped"`
	Archived   int    `json:"archived" yaml:"archived"`
	Dropped    int    `json:"dropped" yaml:"dropped"`
}
