package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"matrun/api"
	"matrun/matrix"
	"matrun/matrix/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

// serve starts the HTTP server with the run scheduler
func serve() error {
	// Load .env file if it exists (ignore errors if it doesn't)
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	dataDir := filepath.Join(cwd, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewStorage(filepath.Join(dataDir, "matrun.db"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	// Load projects configuration
	projectsPath := filepath.Join(cwd, "projects.yml")
	projectsConfig, err := matrix.LoadProjects(projectsPath)
	if err != nil {
		log.Warn("failed to load projects config", "err", err)
		projectsConfig = &matrix.ProjectsConfig{}
	} else {
		log.Info("loaded projects", "count", len(projectsConfig.Projects))
	}

	scheduler := matrix.NewScheduler(projectsConfig, store, cwd)
	go scheduler.Start()
	defer scheduler.Stop()

	mux := http.NewServeMux()

	// CORS middleware
	corsMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// API endpoints
	mux.HandleFunc("/api/runs", api.GetRuns(store))
	mux.HandleFunc("/api/runs/", api.GetRun(store))
	mux.HandleFunc("/api/run", api.PostRun(store))
	mux.HandleFunc("/api/environments", api.ListEnvironments())
	mux.HandleFunc("/api/events", api.SSEHandler())

	mux.HandleFunc("/api/projects", api.GetProjects(projectsConfig, cwd))
	mux.HandleFunc("/api/projects/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/runs"):
			api.GetProjectRuns(store)(w, r)
		case strings.HasSuffix(r.URL.Path, "/run"):
			api.PostProjectRun(store, projectsConfig, cwd)(w, r)
		case strings.HasSuffix(r.URL.Path, "/stats"):
			api.GetProjectStats(store, projectsConfig, cwd)(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	log.Info("starting matrun server", "port", port)

	if err := http.ListenAndServe(":"+port, corsMiddleware(mux)); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// getEnv gets environment variable or returns default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
