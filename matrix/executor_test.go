package matrix_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrun/matrix"
)

func TestRunEnvironmentPass(t *testing.T) {
	env := matrix.Environment{
		Name:     "ok",
		Stage:    "test",
		Commands: []string{"echo hello", "echo world"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	assert.Equal(t, matrix.OutcomePass, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Contains(t, res.Output, "hello")
	assert.Contains(t, res.Output, "world")
}

func TestRunEnvironmentFailStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	env := matrix.Environment{
		Name:     "broken",
		Stage:    "test",
		Commands: []string{"exit 3", "touch after"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{Workdir: dir})
	assert.Equal(t, matrix.OutcomeFail, res.Outcome)
	assert.Equal(t, 3, res.ExitCode)

	var execErr *matrix.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.False(t, execErr.Timeout)

	_, err := os.Stat(filepath.Join(dir, "after"))
	assert.True(t, os.IsNotExist(err), "later commands must not run after a failure")
}

func TestRunEnvironmentIgnoreFailureMarker(t *testing.T) {
	env := matrix.Environment{
		Name:     "lenient",
		Stage:    "test",
		Commands: []string{"- exit 1", "echo still here"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	assert.Equal(t, matrix.OutcomePass, res.Outcome)
	assert.Contains(t, res.Output, "still here")
	assert.Contains(t, res.Output, "ignored non-zero exit 1")
}

func TestRunEnvironmentSkipMissingInterpreter(t *testing.T) {
	env := matrix.Environment{
		Name:        "py99",
		Stage:       "test",
		Interpreter: "matrun-no-such-interpreter",
		SkipMissing: true,
		Commands:    []string{"echo unreachable"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	assert.Equal(t, matrix.OutcomeSkipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.NotContains(t, res.Output, "unreachable")
}

func TestRunEnvironmentMissingInterpreterIsError(t *testing.T) {
	env := matrix.Environment{
		Name:        "py99",
		Stage:       "test",
		Interpreter: "matrun-no-such-interpreter",
		Commands:    []string{"echo unreachable"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	assert.Equal(t, matrix.OutcomeError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestRunEnvironmentUnsatisfiableDeps(t *testing.T) {
	dir := t.TempDir()
	env := matrix.Environment{
		Name:     "conflicted",
		Stage:    "test",
		Deps:     []string{"django >= 1.9", "django < 1.9"},
		Commands: []string{"touch ran"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{Workdir: dir})
	assert.Equal(t, matrix.OutcomeError, res.Outcome)

	var depErr *matrix.DependencyResolutionError
	require.ErrorAs(t, res.Err, &depErr)
	assert.Equal(t, "conflicted", depErr.Env)

	_, err := os.Stat(filepath.Join(dir, "ran"))
	assert.True(t, os.IsNotExist(err), "no command may run when resolution fails")
}

func TestRunEnvironmentTimeout(t *testing.T) {
	env := matrix.Environment{
		Name:     "slow",
		Stage:    "test",
		Timeout:  200 * time.Millisecond,
		Commands: []string{"sleep 10"},
	}

	start := time.Now()
	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, matrix.OutcomeFail, res.Outcome)
	var execErr *matrix.ExecutionError
	require.ErrorAs(t, res.Err, &execErr)
	assert.True(t, execErr.Timeout)
}

func TestRunEnvironmentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	env := matrix.Environment{
		Name:     "aborted",
		Stage:    "test",
		Commands: []string{"sleep 10"},
	}

	res := matrix.RunEnvironment(ctx, env, matrix.RunOptions{})
	assert.Equal(t, matrix.OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRunEnvironmentScopeIsReleased(t *testing.T) {
	env := matrix.Environment{
		Name:     "scoped",
		Stage:    "test",
		Commands: []string{"echo $MATRUN_ENVDIR"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{})
	require.Equal(t, matrix.OutcomePass, res.Outcome)

	envDir := strings.TrimSpace(res.Output)
	require.NotEmpty(t, envDir)

	_, err := os.Stat(envDir)
	assert.True(t, os.IsNotExist(err), "environment directory must be removed after the run")
}

// recordingInstaller captures what would be installed
type recordingInstaller struct {
	dir  string
	deps []matrix.Dependency
	err  error
}

func (r *recordingInstaller) Install(ctx context.Context, dir string, deps []matrix.Dependency) error {
	r.dir = dir
	r.deps = deps
	return r.err
}

func TestRunEnvironmentCallsInstaller(t *testing.T) {
	installer := &recordingInstaller{}
	env := matrix.Environment{
		Name:     "installed",
		Stage:    "test",
		Deps:     []string{"django >= 1.8, < 1.9", "pytest"},
		Commands: []string{"true"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{Installer: installer})
	require.Equal(t, matrix.OutcomePass, res.Outcome)

	require.Len(t, installer.deps, 2)
	assert.Equal(t, "django", installer.deps[0].Name)
	assert.Equal(t, "pytest", installer.deps[1].Name)
	assert.NotEmpty(t, installer.dir)
}

func TestRunEnvironmentInstallerFailure(t *testing.T) {
	installer := &recordingInstaller{err: assert.AnError}
	env := matrix.Environment{
		Name:     "uninstallable",
		Stage:    "test",
		Deps:     []string{"pytest"},
		Commands: []string{"true"},
	}

	res := matrix.RunEnvironment(context.Background(), env, matrix.RunOptions{Installer: installer})
	assert.Equal(t, matrix.OutcomeError, res.Outcome)

	var depErr *matrix.DependencyResolutionError
	require.ErrorAs(t, res.Err, &depErr)
}
