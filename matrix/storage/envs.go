package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateEnvExecution records the terminal result of one environment
func (s *Storage) CreateEnvExecution(exec EnvExecution) (*EnvExecution, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO env_executions (run_id, name, stage, outcome, commands, output, exit_code, allow_failure, finished_at, duration) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		exec.RunID, exec.Name, exec.Stage, exec.Outcome, exec.Commands, exec.Output, exec.ExitCode, exec.AllowFailure, now, exec.Duration.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create environment execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get environment execution ID: %w", err)
	}

	exec.ID = int(id)
	exec.FinishedAt = now
	return &exec, nil
}

// GetEnvExecutions retrieves all environment executions for a run
func (s *Storage) GetEnvExecutions(runID int) ([]*EnvExecution, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, name, stage, outcome, commands, output, exit_code, allow_failure, finished_at, duration FROM env_executions WHERE run_id = ? ORDER BY id ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query environment executions: %w", err)
	}
	defer rows.Close()

	var execs []*EnvExecution
	for rows.Next() {
		var e EnvExecution
		var output sql.NullString
		var duration sql.NullString

		err := rows.Scan(&e.ID, &e.RunID, &e.Name, &e.Stage, &e.Outcome, &e.Commands, &output, &e.ExitCode, &e.AllowFailure, &e.FinishedAt, &duration)
		if err != nil {
			return nil, fmt.Errorf("failed to scan environment execution: %w", err)
		}

		if output.Valid {
			e.Output = output.String
		}
		if duration.Valid {
			if parsed, err := time.ParseDuration(duration.String); err == nil {
				e.Duration = parsed
			}
		}

		execs = append(execs, &e)
	}

	return execs, rows.Err()
}
