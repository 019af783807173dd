package matrix

import (
	"strings"
	"time"
)

// Expand produces the full ordered list of environments from a matrix
// declaration. Expansion is pure and deterministic: stages in declared
// order, explicit environments before the matrix block, matrix rows in
// row-major axis-value order.
//
// It fails with a ConfigurationError (and no partial list) if two
// declarations produce the same environment name, if a stage references
// an undeclared axis, if an environment uses a tag not declared on any
// axis, or if a dependency constraint does not parse.
func Expand(cfg *Config) ([]Environment, error) {
	tags, err := indexTags(cfg.Axes)
	if err != nil {
		return nil, err
	}

	axisByName := make(map[string]Axis, len(cfg.Axes))
	for _, axis := range cfg.Axes {
		axisByName[axis.Name] = axis
	}

	var envs []Environment
	seen := make(map[string]string) // env name -> stage

	add := func(env Environment) error {
		if prev, ok := seen[env.Name]; ok {
			return configErrorf("duplicate environment name %q (stages %s and %s)", env.Name, prev, env.Stage)
		}
		for _, dep := range env.Deps {
			if _, err := ParseDependency(dep); err != nil {
				return configErrorf("environment %s: invalid dependency %q: %v", env.Name, dep, err)
			}
		}
		seen[env.Name] = env.Stage
		envs = append(envs, env)
		return nil
	}

	for _, stage := range cfg.Stages {
		if stage.Name == "" {
			return nil, configErrorf("stage with empty name")
		}

		for _, spec := range stage.Environments {
			env, err := buildExplicitEnv(stage.Name, spec, tags)
			if err != nil {
				return nil, err
			}
			if err := add(env); err != nil {
				return nil, err
			}
		}

		if stage.Matrix != nil {
			generated, err := buildMatrixEnvs(stage.Name, stage.Matrix, axisByName)
			if err != nil {
				return nil, err
			}
			for _, env := range generated {
				if err := add(env); err != nil {
					return nil, err
				}
			}
		}
	}

	return envs, nil
}

// indexTags maps every axis value tag to its value. Tags must be unique
// across axes because environment specs reference them without naming
// the axis.
func indexTags(axes []Axis) (map[string]AxisValue, error) {
	tags := make(map[string]AxisValue)
	for _, axis := range axes {
		for _, val := range axis.Values {
			if val.Tag == "" {
				return nil, configErrorf("axis %s has a value with no tag", axis.Name)
			}
			if _, ok := tags[val.Tag]; ok {
				return nil, configErrorf("tag %q declared on more than one axis value", val.Tag)
			}
			tags[val.Tag] = val
		}
	}
	return tags, nil
}

// buildExplicitEnv resolves a named environment spec against the
// declared axis tags
func buildExplicitEnv(stageName string, spec EnvironmentSpec, tags map[string]AxisValue) (Environment, error) {
	if spec.Name == "" {
		return Environment{}, configErrorf("stage %s has an environment with no name", stageName)
	}

	env := Environment{
		Name:         spec.Name,
		Stage:        stageName,
		Commands:     spec.Commands,
		AllowFailure: spec.AllowFailure,
		SkipMissing:  spec.SkipMissing,
	}

	for _, tag := range spec.Use {
		val, ok := tags[tag]
		if !ok {
			return Environment{}, configErrorf("environment %s uses tag %q not declared on any axis", spec.Name, tag)
		}
		applyAxisValue(&env, val)
	}
	env.Deps = append(env.Deps, spec.Deps...)

	if spec.Timeout != "" {
		timeout, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return Environment{}, configErrorf("environment %s: invalid timeout %q", spec.Name, spec.Timeout)
		}
		env.Timeout = timeout
	}

	return env, nil
}

// buildMatrixEnvs generates the product of the named axes for one stage
func buildMatrixEnvs(stageName string, spec *MatrixSpec, axisByName map[string]Axis) ([]Environment, error) {
	if len(spec.Axes) == 0 {
		return nil, configErrorf("stage %s declares a matrix with no axes", stageName)
	}

	axes := make([]Axis, 0, len(spec.Axes))
	for _, name := range spec.Axes {
		axis, ok := axisByName[name]
		if !ok {
			return nil, configErrorf("stage %s references undeclared axis %q", stageName, name)
		}
		if len(axis.Values) == 0 {
			return nil, configErrorf("axis %s has no values", name)
		}
		axes = append(axes, axis)
	}

	var timeout time.Duration
	if spec.Timeout != "" {
		parsed, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return nil, configErrorf("stage %s: invalid matrix timeout %q", stageName, spec.Timeout)
		}
		timeout = parsed
	}

	excluded := make(map[string]bool, len(spec.Exclude))
	for _, name := range spec.Exclude {
		excluded[name] = true
	}

	var envs []Environment
	combo := make([]AxisValue, len(axes))

	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(axes) {
			parts := make([]string, len(combo))
			for i, val := range combo {
				parts[i] = val.Tag
			}
			name := strings.Join(parts, "-")
			if excluded[name] {
				return
			}

			env := Environment{
				Name:     name,
				Stage:    stageName,
				Commands: spec.Commands,
				Timeout:  timeout,
			}
			for _, val := range combo {
				applyAxisValue(&env, val)
			}
			env.Deps = append(env.Deps, spec.Deps...)
			envs = append(envs, env)
			return
		}
		for _, val := range axes[depth].Values {
			combo[depth] = val
			walk(depth + 1)
		}
	}
	walk(0)

	return envs, nil
}

// applyAxisValue merges one axis value's attributes into an environment.
// The first value with an interpreter wins; deps accumulate in axis
// order; allow-failure and skip-missing are sticky.
func applyAxisValue(env *Environment, val AxisValue) {
	if env.Interpreter == "" && val.Interpreter != "" {
		env.Interpreter = val.Interpreter
	}
	env.Deps = append(env.Deps, val.Deps...)
	if val.AllowFailure {
		env.AllowFailure = true
	}
	if val.SkipMissing {
		env.SkipMissing = true
	}
}
