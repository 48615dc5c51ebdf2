package models

import "time"

// RunStatus is the lifecycle state of a discovery run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

const RunTypeDestination = "destination"

// CategoryProgress counts what happened to the candidates of one category.
type CategoryProgress struct {
	Found   int    `json:"found"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Status  string `json:"status"`
}

// RunError is one error recorded against a discovery run.
type RunError struct {
	Category string    `json:"category,omitempty"`
	Source   string    `json:"source,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// DiscoveryRun audits one bulk discovery. Runs are never deleted.
type DiscoveryRun struct {
	ID          int64                       `json:"id" db:"id"`
	RunType     string                      `json:"run_type" db:"run_type"`
	Destination string                      `json:"destination" db:"destination"`
	Categories  []string                    `json:"categories" db:"categories"`
	Sources     []string                    `json:"sources" db:"sources"`
	Criteria    []byte                      `json:"criteria,omitempty" db:"criteria"`
	Status      RunStatus                   `json:"status" db:"status"`
	Progress    map[string]CategoryProgress `json:"progress" db:"progress"`
	Found       int                         `json:"found" db:"found"`
	Created     int                         `json:"created" db:"created"`
	Updated     int                         `json:"updated" db:"updated"`
	Skipped     int                         `json:"skipped" db:"skipped"`
	Failed      int                         `json:"failed" db:"failed"`
	Errors      []RunError                  `json:"errors" db:"errors"`
	StartedAt   time.Time                   `json:"started_at" db:"started_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty" db:"completed_at"`
}

// AddError appends an error to the run.
func (r *DiscoveryRun) AddError(category, source, msg string, at time.Time) {
	r.Errors = append(r.Errors, RunError{Category: category, Source: source, Message: msg, At: at})
}
