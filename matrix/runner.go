package matrix

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"matrun/events"
	"matrun/matrix/storage"
)

// stageGroup is the ordered set of environments belonging to one stage
type stageGroup struct {
	name string
	envs []Environment
}

// RunMatrix expands and executes the matrix defined in the config file
func RunMatrix(configPath string, opts RunOptions) (*PipelineResult, error) {
	return RunMatrixContext(context.Background(), configPath, opts)
}

// RunMatrixContext executes a matrix run: stages strictly in declared
// order, environments within a stage in parallel, each in its own
// isolated scope. A later stage starts only after every environment of
// the prior stage reached a terminal state. Cancelling the context
// terminates in-flight environments and skips all remaining stages; a
// cancelled run is never reported as a pass.
func RunMatrixContext(ctx context.Context, configPath string, opts RunOptions) (*PipelineResult, error) {
	start := time.Now()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if opts.Installer == nil && cfg.Install != "" {
		opts.Installer = CommandInstaller{Command: cfg.Install}
	}
	if opts.Workdir == "" {
		opts.Workdir = filepath.Dir(configPath)
	}

	envs, err := Expand(cfg)
	if err != nil {
		return nil, err
	}

	stages := groupByStage(cfg, envs, opts.StageFilter)
	if opts.StageFilter != "" && len(stages) == 0 {
		return nil, configErrorf("stage %q not found", opts.StageFilter)
	}

	result := &PipelineResult{Status: "running"}

	if opts.Storage != nil {
		run, err := opts.Storage.CreateRun(configPath, opts.ProjectName, opts.StageFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		result.RunID = run.ID
	}
	events.GetBroker().Broadcast(events.RunStarted, map[string]any{
		"run_id":  result.RunID,
		"project": opts.ProjectName,
		"stage":   opts.StageFilter,
	})

	aborted := false
	for _, stage := range stages {
		if aborted || ctx.Err() != nil {
			// A failed required stage or a cancelled context skips the
			// rest of the matrix; later environments are reported as
			// skipped, never as passes.
			for _, env := range stage.envs {
				result.Results = append(result.Results, RunResult{Env: env, Outcome: OutcomeSkipped})
			}
			continue
		}

		if opts.StreamToTerminal {
			fmt.Printf("\n📦 Stage: %s\n", stage.name)
		}

		stageResults := runStage(ctx, stage, opts)
		result.Results = append(result.Results, stageResults...)

		if opts.Storage != nil {
			for _, res := range stageResults {
				if err := recordResult(opts.Storage, result.RunID, res); err != nil {
					return nil, err
				}
			}
		}
		for _, res := range stageResults {
			events.GetBroker().Broadcast(events.EnvFinished, map[string]any{
				"run_id":   result.RunID,
				"env":      res.Env.Name,
				"stage":    stage.name,
				"outcome":  res.Outcome,
				"duration": res.Duration.String(),
			})
		}

		if ctx.Err() != nil || stageFailed(stageResults) {
			aborted = true
		}
	}

	aggregate(result)
	if ctx.Err() != nil {
		result.Status = "failed"
	}
	result.Duration = time.Since(start)

	if opts.Storage != nil {
		if err := opts.Storage.UpdateRunStatus(result.RunID, result.Status, result.Duration); err != nil {
			return nil, fmt.Errorf("failed to update run status: %w", err)
		}
	}
	events.GetBroker().Broadcast(events.RunFinished, map[string]any{
		"run_id": result.RunID,
		"status": result.Status,
	})

	if opts.StreamToTerminal {
		PrintSummary(result)
	}

	if result.Status != "success" {
		return result, fmt.Errorf("matrix run failed")
	}
	return result, nil
}

// runStage executes every environment of one stage concurrently and
// returns their results in declaration order
func runStage(ctx context.Context, stage stageGroup, opts RunOptions) []RunResult {
	results := make([]RunResult, len(stage.envs))
	var wg sync.WaitGroup

	for i, env := range stage.envs {
		wg.Add(1)
		go func(i int, env Environment) {
			defer wg.Done()
			if opts.StreamToTerminal {
				fmt.Println("→", env.Name)
			}
			res := RunEnvironment(ctx, env, opts)
			if opts.StreamToTerminal {
				switch res.Outcome {
				case OutcomePass:
					fmt.Println("✅ Done:", env.Name)
				case OutcomeSkipped:
					fmt.Println("⏭️  Skipped:", env.Name)
				default:
					fmt.Printf("❌ Failed: %s (%v)\n", env.Name, res.Err)
				}
			}
			results[i] = res
		}(i, env)
	}

	wg.Wait()
	return results
}

// groupByStage splits the expanded environment list back into ordered
// stage groups, applying the optional stage filter
func groupByStage(cfg *Config, envs []Environment, filter string) []stageGroup {
	var stages []stageGroup
	for _, name := range cfg.StageNames() {
		if filter != "" && name != filter {
			continue
		}
		group := stageGroup{name: name}
		for _, env := range envs {
			if env.Stage == name {
				group.envs = append(group.envs, env)
			}
		}
		stages = append(stages, group)
	}
	return stages
}

// stageFailed reports whether a stage blocks progression: any non-pass,
// non-skip outcome from an environment that is not allow-failure
func stageFailed(results []RunResult) bool {
	for _, res := range results {
		if res.Outcome == OutcomePass || res.Outcome == OutcomeSkipped {
			continue
		}
		if !res.Env.AllowFailure {
			return true
		}
	}
	return false
}

// aggregate folds the per-environment results into the pipeline status:
// pass only if every required environment passed or was skipped
func aggregate(result *PipelineResult) {
	result.Status = "success"
	for _, res := range result.Results {
		switch res.Outcome {
		case OutcomePass, OutcomeSkipped:
		default:
			if !res.Env.AllowFailure {
				result.Status = "failed"
			}
		}
	}
}

// Aggregate computes the overall pipeline result for a set of
// environment results
func Aggregate(results []RunResult) *PipelineResult {
	result := &PipelineResult{Results: results}
	aggregate(result)
	for _, res := range results {
		result.Duration += res.Duration
	}
	return result
}

// recordResult persists one environment's terminal result
func recordResult(store *storage.Storage, runID int, res RunResult) error {
	_, err := store.CreateEnvExecution(storage.EnvExecution{
		RunID:        runID,
		Name:         res.Env.Name,
		Stage:        res.Env.Stage,
		Outcome:      string(res.Outcome),
		Commands:     strings.Join(res.Env.Commands, "\n"),
		Output:       res.Output,
		ExitCode:     res.ExitCode,
		AllowFailure: res.Env.AllowFailure,
		Duration:     res.Duration,
	})
	if err != nil {
		return fmt.Errorf("failed to record environment execution: %w", err)
	}
	return nil
}

// PrintSummary writes the environment → outcome table to stdout
func PrintSummary(result *PipelineResult) {
	fmt.Println()
	WriteSummary(os.Stdout, result)
}

// WriteSummary writes the summary table to the given writer
func WriteSummary(w io.Writer, result *PipelineResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tSTAGE\tOUTCOME\tDURATION")
	for _, res := range result.Results {
		outcome := string(res.Outcome)
		if res.Outcome != OutcomePass && res.Outcome != OutcomeSkipped && res.Env.AllowFailure {
			outcome += " (allowed)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Env.Name, res.Env.Stage, outcome, res.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(tw, "\nresult: %s\n", result.Status)
	tw.Flush()
}
