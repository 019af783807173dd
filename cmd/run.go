package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"matrun/matrix"
	"matrun/matrix/storage"
)

var (
	runStage   string
	runTimeout time.Duration
	runNoDB    bool

	runCmd = &cobra.Command{
		Use:   "run [config]",
		Short: "Expand and execute the matrix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "matrun.yml"
			if len(args) == 1 {
				configPath = args[0]
			}
			return runMatrix(configPath)
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&runStage, "stage", "", "run only this stage")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-environment deadline (e.g. 10m)")
	runCmd.Flags().BoolVar(&runNoDB, "no-db", false, "skip recording the run in the local database")
}

// runMatrix executes the matrix with run history stored in ./data
func runMatrix(configPath string) error {
	var store *storage.Storage
	if !runNoDB {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		dataDir := filepath.Join(cwd, "data")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err = storage.NewStorage(filepath.Join(dataDir, "matrun.db"))
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()
	}

	// Ctrl-C terminates in-flight environments and skips later stages
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := matrix.RunMatrixContext(ctx, configPath, matrix.RunOptions{
		Storage:          store,
		StreamToTerminal: true,
		StageFilter:      runStage,
		Timeout:          runTimeout,
	})
	if err != nil {
		if result != nil {
			fmt.Printf("\n📊 Run ID: %d | Status: %s | Duration: %s\n", result.RunID, result.Status, result.Duration.Round(time.Millisecond))
		}
		return err
	}

	fmt.Printf("\n📊 Run ID: %d | Status: %s | Duration: %s\n", result.RunID, result.Status, result.Duration.Round(time.Millisecond))
	return nil
}
