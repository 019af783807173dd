package matrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Installer installs resolved dependencies into an environment's private
// directory. Implementations must be safe for concurrent use: sibling
// environments install in parallel, each into its own directory.
type Installer interface {
	Install(ctx context.Context, dir string, deps []Dependency) error
}

// NoopInstaller resolves constraints but installs nothing. It is the
// default when no installer is configured.
type NoopInstaller struct{}

func (NoopInstaller) Install(ctx context.Context, dir string, deps []Dependency) error {
	return nil
}

// CommandInstaller shells out to an external install tool, e.g.
// "pip install", passing the raw dependency specs as arguments.
type CommandInstaller struct {
	Command string
}

func (c CommandInstaller) Install(ctx context.Context, dir string, deps []Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	args := strings.Fields(c.Command)
	if len(args) == 0 {
		return fmt.Errorf("empty install command")
	}
	for _, dep := range deps {
		args = append(args, dep.Raw)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "MATRUN_ENVDIR="+dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("install failed: %w\n%s", err, out)
	}
	return nil
}

// RunEnvironment executes a single environment: resolve its dependency
// constraints, acquire a private installation directory (released on all
// exit paths), install, then run the commands in order. A command
// prefixed with "-" never fails the environment even on non-zero exit.
func RunEnvironment(ctx context.Context, env Environment, opts RunOptions) RunResult {
	start := time.Now()
	result := RunResult{Env: env}

	finish := func(outcome Outcome, err error) RunResult {
		result.Outcome = outcome
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	// Skip before resolving anything if the interpreter is unavailable
	if env.Interpreter != "" {
		if _, err := exec.LookPath(env.Interpreter); err != nil {
			if env.SkipMissing {
				result.Output = fmt.Sprintf("interpreter %s not found, skipped\n", env.Interpreter)
				return finish(OutcomeSkipped, nil)
			}
			return finish(OutcomeError, fmt.Errorf("interpreter %s not found", env.Interpreter))
		}
	}

	deps, err := ResolveDependencies(env.Name, env.Deps)
	if err != nil {
		result.Output = err.Error() + "\n"
		return finish(OutcomeError, err)
	}

	envDir, err := os.MkdirTemp("", "matrun-"+env.Name+"-")
	if err != nil {
		return finish(OutcomeError, fmt.Errorf("failed to create environment directory: %w", err))
	}
	defer os.RemoveAll(envDir)

	installer := opts.Installer
	if installer == nil {
		installer = NoopInstaller{}
	}
	if err := installer.Install(ctx, envDir, deps); err != nil {
		depErr := &DependencyResolutionError{Env: env.Name, Dep: dependencyList(deps), Reason: err.Error()}
		result.Output = depErr.Error() + "\n"
		return finish(OutcomeError, depErr)
	}

	timeout := env.Timeout
	if timeout == 0 {
		timeout = opts.Timeout
	}

	var output bytes.Buffer
	for _, command := range env.Commands {
		ignoreFailure := strings.HasPrefix(command, "-")
		command = strings.TrimSpace(strings.TrimPrefix(command, "-"))

		exitCode, err := runCommand(ctx, command, envDir, env, timeout, &output, opts)
		if err != nil {
			result.Output = output.String()
			result.ExitCode = exitCode
			var execErr *ExecutionError
			if errors.As(err, &execErr) && !ignoreFailure {
				return finish(OutcomeFail, err)
			}
			if !errors.As(err, &execErr) {
				// Cancellation or a spawn failure, not a command exit
				return finish(OutcomeError, err)
			}
			fmt.Fprintf(&output, "ignored non-zero exit %d from: %s\n", exitCode, command)
		}
	}

	result.Output = output.String()
	return finish(OutcomePass, nil)
}

// runCommand executes one shell command with the environment's deadline
// applied, capturing combined output
func runCommand(ctx context.Context, command string, envDir string, env Environment, timeout time.Duration, output *bytes.Buffer, opts RunOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("environment %s aborted: %w", env.Name, err)
	}

	cmdCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", command)
	cmd.Dir = opts.Workdir
	cmd.Env = append(os.Environ(),
		"MATRUN_ENV="+env.Name,
		"MATRUN_ENVDIR="+envDir,
	)

	var stdoutWriters []io.Writer
	var stderrWriters []io.Writer
	stdoutWriters = append(stdoutWriters, output)
	stderrWriters = append(stderrWriters, output)
	if opts.StreamToTerminal {
		stdoutWriters = append(stdoutWriters, os.Stdout)
		stderrWriters = append(stderrWriters, os.Stderr)
	}
	cmd.Stdout = io.MultiWriter(stdoutWriters...)
	cmd.Stderr = io.MultiWriter(stderrWriters...)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	if cmdCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return -1, &ExecutionError{Env: env.Name, Command: command, Timeout: true}
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("environment %s aborted: %w", env.Name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return code, &ExecutionError{Env: env.Name, Command: command, ExitCode: code}
	}
	return -1, fmt.Errorf("failed to start command %q: %w", command, err)
}

func dependencyList(deps []Dependency) string {
	names := make([]string, len(deps))
	for i, dep := range deps {
		names[i] = dep.Name
	}
	return strings.Join(names, ", ")
}
