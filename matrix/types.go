package matrix

import (
	"time"

	"matrun/matrix/storage"
)

// Outcome is the terminal state of a single environment run
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// Environment is one concrete combination of axis values: a named
// execution context with its own dependency constraints and commands.
// Environments are produced by Expand and never mutated afterwards.
type Environment struct {
	Name         string        `json:"name"`
	Stage        string        `json:"stage"`
	Interpreter  string        `json:"interpreter,omitempty"`
	Deps         []string      `json:"deps,omitempty"`
	Commands     []string      `json:"commands"`
	AllowFailure bool          `json:"allow_failure,omitempty"`
	SkipMissing  bool          `json:"skip_missing,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// RunResult represents the result of running a single environment
type RunResult struct {
	Env      Environment   `json:"env"`
	Outcome  Outcome       `json:"outcome"`
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// PipelineResult represents the aggregated result of a full matrix run
type PipelineResult struct {
	Status   string        `json:"status"` // "success" or "failed"
	RunID    int           `json:"run_id"`
	Results  []RunResult   `json:"results"`
	Duration time.Duration `json:"duration"`
}

// RunOptions configures how the matrix should be executed
type RunOptions struct {
	Storage          *storage.Storage // Optional storage for database persistence
	StreamToTerminal bool             // If true, also stream command output to terminal
	StageFilter      string           // Optional: run only this stage (empty = run all)
	Timeout          time.Duration    // Per-environment deadline, 0 = none
	Installer        Installer        // Dependency installer, nil = resolve only
	ProjectName      string           // Recorded with the run when storage is set
	Workdir          string           // Commands run here; RunMatrix defaults it to the config directory
}
