package matrix

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AxisValue is one enumerated value on an axis. The tag is the short
// token used to build environment names (e.g. "py27", "dj111").
type AxisValue struct {
	Tag          string   `yaml:"tag"`
	Value        string   `yaml:"value,omitempty"`
	Interpreter  string   `yaml:"interpreter,omitempty"`
	Deps         []string `yaml:"deps,omitempty"`
	AllowFailure bool     `yaml:"allow_failure,omitempty"`
	SkipMissing  bool     `yaml:"skip_missing,omitempty"`
}

// Axis is a named configuration dimension with its enumerated values
type Axis struct {
	Name   string      `yaml:"name"`
	Values []AxisValue `yaml:"values"`
}

// EnvironmentSpec declares a single explicit environment inside a stage.
// Use lists axis value tags whose deps/interpreter/flags the environment
// inherits.
type EnvironmentSpec struct {
	Name         string   `yaml:"name"`
	Use          []string `yaml:"use,omitempty"`
	Deps         []string `yaml:"deps,omitempty"`
	Commands     []string `yaml:"commands"`
	AllowFailure bool     `yaml:"allow_failure,omitempty"`
	SkipMissing  bool     `yaml:"skip_missing,omitempty"`
	Timeout      string   `yaml:"timeout,omitempty"`
}

// MatrixSpec declares a generated block of environments: the product of
// the named axes, minus excluded names, each running the same commands.
type MatrixSpec struct {
	Axes     []string `yaml:"axes"`
	Exclude  []string `yaml:"exclude,omitempty"`
	Deps     []string `yaml:"deps,omitempty"`
	Commands []string `yaml:"commands"`
	Timeout  string   `yaml:"timeout,omitempty"`
}

// StageSpec is an ordered group of environments. A stage declares either
// explicit environments, a matrix block, or both.
type StageSpec struct {
	Name         string            `yaml:"name"`
	Environments []EnvironmentSpec `yaml:"environments,omitempty"`
	Matrix       *MatrixSpec       `yaml:"matrix,omitempty"`
}

// Schedule defines when a matrix run should be triggered automatically
type Schedule struct {
	At     string   `yaml:"at,omitempty"`    // Time of day, "HH:MM"
	Every  string   `yaml:"every,omitempty"` // Interval, e.g. "1h", "30m"
	Stages []string `yaml:"stages,omitempty"`
}

// Config is the full declarative matrix description loaded from matrun.yml
type Config struct {
	Axes      []Axis      `yaml:"axes,omitempty"`
	Install   string      `yaml:"install,omitempty"` // Installer command prefix, e.g. "pip install"
	Stages    []StageSpec `yaml:"stages"`
	Schedules []Schedule  `yaml:"schedules,omitempty"`
}

// LoadConfig reads and parses a matrix declaration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse matrix config: %w", err)
	}
	if len(cfg.Stages) == 0 {
		return nil, configErrorf("no stages declared in %s", path)
	}
	return &cfg, nil
}

// StageNames returns the declared stage names in order
func (c *Config) StageNames() []string {
	names := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		names = append(names, s.Name)
	}
	return names
}
