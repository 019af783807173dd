package matrix

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"matrun/matrix/storage"
)

// Scheduler triggers automatic matrix runs based on the schedules
// declared in each project's matrun.yml
type Scheduler struct {
	projectsConfig *ProjectsConfig
	storage        *storage.Storage
	baseDir        string
	stopChan       chan struct{}
	lastRuns       map[string]time.Time // track last execution per schedule
	mu             sync.RWMutex         // protect lastRuns map
	runningJobs    map[string]bool      // track currently running schedules
}

// NewScheduler creates a new scheduler instance
func NewScheduler(projectsConfig *ProjectsConfig, storage *storage.Storage, baseDir string) *Scheduler {
	return &Scheduler{
		projectsConfig: projectsConfig,
		storage:        storage,
		baseDir:        baseDir,
		stopChan:       make(chan struct{}),
		lastRuns:       make(map[string]time.Time),
		runningJobs:    make(map[string]bool),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	log.Info("scheduler started")
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Run tick immediately on start
	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			log.Info("scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// tick checks all schedules and triggers runs if needed
func (s *Scheduler) tick() {
	for _, project := range s.projectsConfig.Projects {
		configPath := project.GetMatrixPath(s.baseDir)

		// Skip if the matrix file can't be loaded (might not have schedules)
		cfg, err := LoadConfig(configPath)
		if err != nil {
			continue
		}
		if len(cfg.Schedules) == 0 {
			continue
		}

		stageNames := make(map[string]bool)
		for _, name := range cfg.StageNames() {
			stageNames[name] = true
		}

		for i, schedule := range cfg.Schedules {
			scheduleKey := fmt.Sprintf("%s-schedule-%d", project.Name, i)

			s.mu.RLock()
			lastRun := s.lastRuns[scheduleKey]
			isRunning := s.runningJobs[scheduleKey]
			s.mu.RUnlock()

			// Skip if already running
			if isRunning {
				continue
			}

			if !s.shouldRun(schedule, lastRun) {
				continue
			}

			valid := true
			for _, stage := range schedule.Stages {
				if !stageNames[stage] {
					log.Warn("schedule skipped: stage not found", "project", project.Name, "stage", stage)
					valid = false
				}
			}
			if !valid {
				continue
			}

			s.mu.Lock()
			s.runningJobs[scheduleKey] = true
			s.lastRuns[scheduleKey] = time.Now()
			s.mu.Unlock()

			go func(p Project, sched Schedule, key string) {
				s.executeSchedule(p.Name, sched)

				s.mu.Lock()
				delete(s.runningJobs, key)
				s.mu.Unlock()
			}(project, schedule, scheduleKey)
		}
	}
}

// shouldRun determines if a schedule should be triggered now
func (s *Scheduler) shouldRun(schedule Schedule, lastRun time.Time) bool {
	now := time.Now()

	// Time-based schedule (at: "HH:MM")
	if schedule.At != "" {
		hour, minute, err := parseAtTime(schedule.At)
		if err != nil {
			log.Warn("invalid schedule time", "at", schedule.At, "err", err)
			return false
		}

		if now.Hour() == hour && now.Minute() == minute {
			// Only run once per day at this time
			if lastRun.IsZero() || now.Sub(lastRun) >= 23*time.Hour {
				return true
			}
		}
		return false
	}

	// Interval-based schedule (every: "1h", "30m", etc.)
	if schedule.Every != "" {
		interval, err := time.ParseDuration(schedule.Every)
		if err != nil {
			log.Warn("invalid schedule interval", "every", schedule.Every, "err", err)
			return false
		}

		if lastRun.IsZero() || now.Sub(lastRun) >= interval {
			return true
		}
		return false
	}

	return false
}

// executeSchedule triggers a matrix run for the given schedule
func (s *Scheduler) executeSchedule(projectName string, schedule Schedule) {
	project, err := s.projectsConfig.GetProject(projectName)
	if err != nil {
		log.Error("schedule execution failed", "err", err)
		return
	}

	configPath := project.GetMatrixPath(s.baseDir)
	stagesStr := "all stages"
	if len(schedule.Stages) > 0 {
		stagesStr = strings.Join(schedule.Stages, ", ")
	}
	log.Info("schedule triggered", "project", projectName, "stages", stagesStr)

	// An empty stage list means the whole matrix in one run
	filters := schedule.Stages
	if len(filters) == 0 {
		filters = []string{""}
	}

	for _, stage := range filters {
		_, err := RunMatrix(configPath, RunOptions{
			Storage:     s.storage,
			ProjectName: projectName,
			StageFilter: stage,
		})
		if err != nil {
			log.Error("scheduled run failed", "project", projectName, "stage", stage, "err", err)
		} else {
			log.Info("scheduled run completed", "project", projectName, "stage", stage)
		}
	}
}

// parseAtTime parses "HH:MM" format
func parseAtTime(at string) (hour, minute int, err error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format, expected HH:MM")
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour")
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute")
	}

	return hour, minute, nil
}
