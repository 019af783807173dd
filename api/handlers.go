package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"matrun/matrix"
	"matrun/matrix/storage"
)

// GetRuns returns all runs
func GetRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		runs, err := store.GetRuns(100) // Limit to 100 most recent
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get runs: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

// GetRun returns a single run with its environment executions
func GetRun(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Parse run ID from URL: /api/runs/:id
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(pathParts) < 3 {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		runID, err := strconv.Atoi(pathParts[2])
		if err != nil {
			http.Error(w, "Invalid run ID", http.StatusBadRequest)
			return
		}

		run, err := store.GetRun(runID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Run not found: %v", err), http.StatusNotFound)
			return
		}

		envs, err := store.GetEnvExecutions(runID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get environment executions: %v", err), http.StatusInternalServerError)
			return
		}

		type RunResponse struct {
			Run          *storage.Run            `json:"run"`
			Environments []*storage.EnvExecution `json:"environments"`
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RunResponse{Run: run, Environments: envs})
	}
}

// ListEnvironments expands a matrix file and returns the environment
// list without running anything
func ListEnvironments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		configPath := r.URL.Query().Get("config")
		if configPath == "" {
			http.Error(w, "config query parameter is required", http.StatusBadRequest)
			return
		}

		cfg, err := matrix.LoadConfig(configPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load config: %v", err), http.StatusBadRequest)
			return
		}

		envs, err := matrix.Expand(cfg)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to expand matrix: %v", err), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envs)
	}
}

// PostRun triggers a new matrix run
func PostRun(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "Method not allowed",
			})
			return
		}

		var req struct {
			ConfigPath string `json:"config_path"`
			Stage      string `json:"stage,omitempty"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		if req.ConfigPath == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "config_path is required",
			})
			return
		}

		configPath := req.ConfigPath
		if !filepath.IsAbs(configPath) {
			cwd, err := os.Getwd()
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"error": fmt.Sprintf("Failed to get working directory: %v", err),
				})
				return
			}
			configPath = filepath.Join(cwd, configPath)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"error": fmt.Sprintf("Config file not found: %s", configPath),
			})
			return
		}

		log.Info("triggering matrix run", "config", configPath, "stage", req.Stage)

		result, err := matrix.RunMatrix(configPath, matrix.RunOptions{
			Storage:     store,
			StageFilter: req.Stage,
		})
		if err != nil && result == nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"error": err.Error(),
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"run_id": result.RunID,
			"status": result.Status,
		})
	}
}

// GetProjects returns all configured projects
func GetProjects(projectsConfig *matrix.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		type ProjectResponse struct {
			matrix.Project
			Valid bool   `json:"valid"`
			Error string `json:"error,omitempty"`
		}

		projects := make([]ProjectResponse, 0, len(projectsConfig.Projects))
		for _, project := range projectsConfig.Projects {
			pr := ProjectResponse{Project: project, Valid: true}
			if err := project.Validate(baseDir); err != nil {
				pr.Valid = false
				pr.Error = err.Error()
			}
			projects = append(projects, pr)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(projects)
	}
}

// GetProjectRuns returns runs for a specific project
func GetProjectRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Parse project name from URL: /api/projects/:name/runs
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(pathParts) < 3 {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		runs, err := store.GetProjectRuns(pathParts[2], 100)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get runs: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

// PostProjectRun triggers a matrix run for a specific project
func PostProjectRun(store *storage.Storage, projectsConfig *matrix.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "Method not allowed",
			})
			return
		}

		// Parse project name from URL: /api/projects/:name/run
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(pathParts) < 3 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": "Invalid path",
			})
			return
		}

		projectName := pathParts[2]

		project, err := projectsConfig.GetProject(projectName)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"error": fmt.Sprintf("Project not found: %v", err),
			})
			return
		}

		if err := project.Validate(baseDir); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": fmt.Sprintf("Invalid project: %v", err),
			})
			return
		}

		configPath := project.GetMatrixPath(baseDir)
		stageFilter := r.URL.Query().Get("stage")

		log.Info("triggering matrix run", "project", projectName, "stage", stageFilter)

		// Start the run in a goroutine - runs completely async
		go func() {
			_, err := matrix.RunMatrix(configPath, matrix.RunOptions{
				Storage:     store,
				ProjectName: projectName,
				StageFilter: stageFilter,
			})
			if err != nil {
				log.Error("matrix run failed", "project", projectName, "err", err)
			} else {
				log.Info("matrix run completed", "project", projectName)
			}
		}()

		// Return immediately - the run will be created in DB and polling will pick it up
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"message": fmt.Sprintf("Matrix run started for %s", projectName),
			"status":  "starting",
		})
	}
}

// GetProjectStats returns latest runs grouped by stage for a project
func GetProjectStats(store *storage.Storage, projectsConfig *matrix.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Parse project name from URL: /api/projects/:name/stats
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(pathParts) < 3 {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		projectName := pathParts[2]

		stats, err := store.GetLatestRunsByStage(projectName, 5)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get project stats: %v", err), http.StatusInternalServerError)
			return
		}

		// Add placeholder entries for stages that have no recorded runs
		if project, err := projectsConfig.GetProject(projectName); err == nil {
			if cfg, err := matrix.LoadConfig(project.GetMatrixPath(baseDir)); err == nil {
				stagesWithRuns := make(map[string]bool)
				for _, stat := range stats {
					stagesWithRuns[stat.Stage] = true
				}
				for _, stage := range cfg.StageNames() {
					if !stagesWithRuns[stage] {
						stats = append(stats, storage.StageRunStats{Stage: stage})
					}
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}
