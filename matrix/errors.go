package matrix

import "fmt"

// ConfigurationError indicates the matrix declaration itself is invalid
// (duplicate environment name, unknown axis or tag, malformed dependency).
// It is fatal: nothing is executed when expansion fails.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// configErrorf builds a ConfigurationError from a format string
func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// DependencyResolutionError indicates an environment's dependency
// constraints cannot be jointly satisfied. It is raised before any of the
// environment's commands execute and only fails that environment.
type DependencyResolutionError struct {
	Env    string
	Dep    string
	Reason string
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("dependency resolution failed for %s: %s: %s", e.Env, e.Dep, e.Reason)
}

// ExecutionError indicates a command in an environment exited non-zero or
// ran past its deadline.
type ExecutionError struct {
	Env      string
	Command  string
	ExitCode int
	Timeout  bool
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("command timed out in %s: %s", e.Env, e.Command)
	}
	return fmt.Sprintf("command failed in %s (exit %d): %s", e.Env, e.ExitCode, e.Command)
}
