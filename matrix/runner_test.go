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

// writeConfig drops a matrun.yml into a temp dir and returns its path
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "matrun.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunMatrixStageOrdering(t *testing.T) {
	config := `
stages:
  - name: first
    environments:
      - name: slow-setup
        commands:
          - sleep 0.3 && touch first-done
  - name: second
    environments:
      - name: needs-first
        commands:
          - test -f first-done
`
	path := writeConfig(t, config)

	result, err := matrix.RunMatrix(path, matrix.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestRunMatrixStageSiblingsRunConcurrently(t *testing.T) {
	// Each environment waits for the other's marker file; the stage only
	// passes if both are in flight at the same time.
	config := `
stages:
  - name: test
    environments:
      - name: left
        commands:
          - "touch left; for i in $(seq 50); do test -f right && exit 0; sleep 0.1; done; exit 1"
      - name: right
        commands:
          - "touch right; for i in $(seq 50); do test -f left && exit 0; sleep 0.1; done; exit 1"
`
	path := writeConfig(t, config)

	result, err := matrix.RunMatrix(path, matrix.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestRunMatrixFailedStageSkipsLaterStages(t *testing.T) {
	config := `
stages:
  - name: quality
    environments:
      - name: lint
        commands:
          - exit 1
  - name: test
    environments:
      - name: unit
        commands:
          - touch should-not-exist
`
	path := writeConfig(t, config)

	result, err := matrix.RunMatrix(path, matrix.RunOptions{})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "failed", result.Status)

	require.Len(t, result.Results, 2)
	assert.Equal(t, matrix.OutcomeFail, result.Results[0].Outcome)
	assert.Equal(t, matrix.OutcomeSkipped, result.Results[1].Outcome)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(path), "should-not-exist"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunMatrixAllowFailureDoesNotBlock(t *testing.T) {
	config := `
stages:
  - name: quality
    environments:
      - name: experimental-lint
        allow_failure: true
        commands:
          - exit 1
  - name: test
    environments:
      - name: unit
        commands:
          - echo ok
`
	path := writeConfig(t, config)

	result, err := matrix.RunMatrix(path, matrix.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)

	require.Len(t, result.Results, 2)
	assert.Equal(t, matrix.OutcomeFail, result.Results[0].Outcome)
	assert.Equal(t, matrix.OutcomePass, result.Results[1].Outcome)
}

func TestRunMatrixCancellation(t *testing.T) {
	config := `
stages:
  - name: first
    environments:
      - name: hang
        commands:
          - sleep 30
  - name: second
    environments:
      - name: never
        commands:
          - echo nope
`
	path := writeConfig(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := matrix.RunMatrixContext(ctx, path, matrix.RunOptions{})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Less(t, time.Since(start), 10*time.Second)

	assert.Equal(t, "failed", result.Status, "a cancelled run must never pass")
	require.Len(t, result.Results, 2)
	assert.Equal(t, matrix.OutcomeSkipped, result.Results[1].Outcome)
}

func TestRunMatrixStageFilter(t *testing.T) {
	config := `
stages:
  - name: quality
    environments:
      - name: lint
        commands:
          - exit 1
  - name: test
    environments:
      - name: unit
        commands:
          - echo ok
`
	path := writeConfig(t, config)

	result, err := matrix.RunMatrix(path, matrix.RunOptions{StageFilter: "test"})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "unit", result.Results[0].Env.Name)
}

func TestRunMatrixUnknownStageFilter(t *testing.T) {
	path := writeConfig(t, "stages:\n  - name: test\n    environments:\n      - name: unit\n        commands: [\"true\"]\n")

	_, err := matrix.RunMatrix(path, matrix.RunOptions{StageFilter: "deploy"})
	var cfgErr *matrix.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAggregate(t *testing.T) {
	pass := matrix.RunResult{Env: matrix.Environment{Name: "a"}, Outcome: matrix.OutcomePass}
	fail := matrix.RunResult{Env: matrix.Environment{Name: "b"}, Outcome: matrix.OutcomeFail}
	allowedFail := matrix.RunResult{Env: matrix.Environment{Name: "c", AllowFailure: true}, Outcome: matrix.OutcomeFail}
	skipped := matrix.RunResult{Env: matrix.Environment{Name: "d"}, Outcome: matrix.OutcomeSkipped}

	assert.Equal(t, "success", matrix.Aggregate([]matrix.RunResult{pass, allowedFail}).Status)
	assert.Equal(t, "failed", matrix.Aggregate([]matrix.RunResult{pass, fail}).Status)
	assert.Equal(t, "success", matrix.Aggregate([]matrix.RunResult{pass, skipped}).Status)
	assert.Equal(t, "success", matrix.Aggregate([]matrix.RunResult{skipped}).Status)
	assert.Equal(t, "failed", matrix.Aggregate([]matrix.RunResult{fail, allowedFail}).Status)
}

func TestWriteSummary(t *testing.T) {
	result := matrix.Aggregate([]matrix.RunResult{
		{Env: matrix.Environment{Name: "py36-dj18", Stage: "test"}, Outcome: matrix.OutcomePass},
		{Env: matrix.Environment{Name: "py37dev-dj18", Stage: "test", AllowFailure: true}, Outcome: matrix.OutcomeFail},
	})

	var buf strings.Builder
	matrix.WriteSummary(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "py36-dj18")
	assert.Contains(t, out, "fail (allowed)")
	assert.Contains(t, out, "result: success")
}
