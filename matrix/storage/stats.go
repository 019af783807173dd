package storage

import (
	"database/sql"
	"fmt"
)

// StageRunStats represents the latest runs of a project grouped by the
// stage the environments belong to
type StageRunStats struct {
	Stage     string  `json:"stage"`
	RunID     int     `json:"run_id"`
	Status    string  `json:"status"`
	Duration  *string `json:"duration,omitempty"`
	StartedAt string  `json:"started_at"`
	EnvCount  int     `json:"env_count"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
}

// GetLatestRunsByStage returns the latest runs for each stage of a
// project, at most limit rows per stage
func (s *Storage) GetLatestRunsByStage(projectName string, limit int) ([]StageRunStats, error) {
	// Simple query without window functions for better SQLite compatibility
	query := `
		SELECT
			ee.stage,
			r.id,
			r.status,
			r.duration,
			r.started_at,
			COUNT(ee.id) as env_count,
			SUM(CASE WHEN ee.outcome = 'pass' THEN 1 ELSE 0 END) as passed,
			SUM(CASE WHEN ee.outcome IN ('fail', 'error') THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN ee.outcome = 'skipped' THEN 1 ELSE 0 END) as skipped
		FROM runs r
		JOIN env_executions ee ON r.id = ee.run_id
		WHERE r.project_name = ?
		GROUP BY ee.stage, r.id, r.status, r.duration, r.started_at
		ORDER BY ee.stage, r.started_at DESC
	`

	rows, err := s.db.Query(query, projectName)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	// Limit runs per stage
	stageCounts := make(map[string]int)
	stats := make([]StageRunStats, 0)

	for rows.Next() {
		var stat StageRunStats
		var duration sql.NullString

		err := rows.Scan(
			&stat.Stage,
			&stat.RunID,
			&stat.Status,
			&duration,
			&stat.StartedAt,
			&stat.EnvCount,
			&stat.Passed,
			&stat.Failed,
			&stat.Skipped,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}

		if stageCounts[stat.Stage] >= limit {
			continue
		}
		stageCounts[stat.Stage]++

		if duration.Valid {
			durationStr := duration.String
			stat.Duration = &durationStr
		}

		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
