package storage

import "time"

// Run represents one matrix invocation
type Run struct {
	ID          int        `json:"id"`
	Status      string     `json:"status"` // "running", "success", "failed"
	ConfigPath  string     `json:"config_path"`
	ProjectName string     `json:"project_name,omitempty"`
	StageFilter string     `json:"stage_filter,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Duration    *string    `json:"duration,omitempty"`
}

// EnvExecution represents the terminal result of a single environment
// within a run
type EnvExecution struct {
	ID           int           `json:"id"`
	RunID        int           `json:"run_id"`
	Name         string        `json:"name"`
	Stage        string        `json:"stage"`
	Outcome      string        `json:"outcome"` // "pass", "fail", "error", "skipped"
	Commands     string        `json:"commands"`
	Output       string        `json:"output"`
	ExitCode     int           `json:"exit_code"`
	AllowFailure bool          `json:"allow_failure"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
}
