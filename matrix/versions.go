package matrix

import (
	"fmt"
	"strings"

	version "github.com/hashicorp/go-version"
)

// Dependency is a parsed dependency declaration: a package name plus an
// optional set of version constraints, e.g. "django >= 1.8, < 1.9".
// An empty constraint set means any version.
type Dependency struct {
	Name string
	Raw  string

	constraints version.Constraints
	parts       []constraintPart
}

// constraintPart keeps the operator-level view of one constraint so
// joint satisfiability can be checked. precision is the number of
// version segments actually written (for pessimistic bounds).
type constraintPart struct {
	op        string
	ver       *version.Version
	precision int
}

// Matches reports whether a concrete version satisfies the dependency
func (d Dependency) Matches(v *version.Version) bool {
	if len(d.constraints) == 0 {
		return true
	}
	return d.constraints.Check(v)
}

// String returns the dependency as declared
func (d Dependency) String() string { return d.Raw }

// ParseDependency parses a dependency declaration of the form
// "name" or "name OP version[, OP version...]"
func ParseDependency(s string) (Dependency, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Dependency{}, fmt.Errorf("empty dependency")
	}

	split := strings.IndexAny(raw, "<>=!~ ")
	if split == -1 {
		return Dependency{Name: raw, Raw: raw}, nil
	}

	name := strings.TrimSpace(raw[:split])
	spec := strings.TrimSpace(raw[split:])
	if name == "" {
		return Dependency{}, fmt.Errorf("dependency %q has no package name", raw)
	}
	if spec == "" {
		return Dependency{Name: name, Raw: raw}, nil
	}

	constraints, err := version.NewConstraint(spec)
	if err != nil {
		return Dependency{}, fmt.Errorf("invalid constraint %q: %w", spec, err)
	}

	var parts []constraintPart
	for _, part := range strings.Split(spec, ",") {
		parsed, err := parseConstraintPart(part)
		if err != nil {
			return Dependency{}, err
		}
		parts = append(parts, parsed)
	}

	return Dependency{Name: name, Raw: raw, constraints: constraints, parts: parts}, nil
}

var constraintOps = []string{">=", "<=", "!=", "==", "~>", "=", ">", "<"}

func parseConstraintPart(s string) (constraintPart, error) {
	s = strings.TrimSpace(s)
	op := "="
	for _, candidate := range constraintOps {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			s = strings.TrimSpace(s[len(candidate):])
			break
		}
	}
	if op == "==" {
		op = "="
	}

	ver, err := version.NewVersion(s)
	if err != nil {
		return constraintPart{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return constraintPart{op: op, ver: ver, precision: strings.Count(s, ".") + 1}, nil
}

// ResolveDependencies parses an environment's dependency declarations
// and verifies that the constraints on each package are jointly
// satisfiable. It returns a DependencyResolutionError before anything is
// installed or executed when they are not.
func ResolveDependencies(envName string, deps []string) ([]Dependency, error) {
	resolved := make([]Dependency, 0, len(deps))
	byName := make(map[string][]constraintPart)
	order := make([]string, 0, len(deps))

	for _, raw := range deps {
		dep, err := ParseDependency(raw)
		if err != nil {
			return nil, &DependencyResolutionError{Env: envName, Dep: raw, Reason: err.Error()}
		}
		resolved = append(resolved, dep)
		if _, ok := byName[dep.Name]; !ok {
			order = append(order, dep.Name)
		}
		byName[dep.Name] = append(byName[dep.Name], dep.parts...)
	}

	for _, name := range order {
		if reason := unsatisfiableReason(byName[name]); reason != "" {
			return nil, &DependencyResolutionError{Env: envName, Dep: name, Reason: reason}
		}
	}

	return resolved, nil
}

// unsatisfiableReason folds a package's constraint parts into a single
// interval plus pins and exclusions, and reports why the combination is
// empty. An empty string means the constraints are satisfiable.
func unsatisfiableReason(parts []constraintPart) string {
	var (
		lo, hi       *version.Version
		loInc, hiInc bool
		pin          *version.Version
		exclusions   []*version.Version
	)

	raiseLo := func(v *version.Version, inclusive bool) {
		if lo == nil || v.GreaterThan(lo) || (v.Equal(lo) && loInc && !inclusive) {
			lo, loInc = v, inclusive
		}
	}
	lowerHi := func(v *version.Version, inclusive bool) {
		if hi == nil || v.LessThan(hi) || (v.Equal(hi) && hiInc && !inclusive) {
			hi, hiInc = v, inclusive
		}
	}

	for _, part := range parts {
		switch part.op {
		case "=":
			if pin != nil && !pin.Equal(part.ver) {
				return fmt.Sprintf("pinned to both %s and %s", pin, part.ver)
			}
			pin = part.ver
		case "!=":
			exclusions = append(exclusions, part.ver)
		case ">":
			raiseLo(part.ver, false)
		case ">=":
			raiseLo(part.ver, true)
		case "<":
			lowerHi(part.ver, false)
		case "<=":
			lowerHi(part.ver, true)
		case "~>":
			raiseLo(part.ver, true)
			lowerHi(pessimisticUpper(part), false)
		}
	}

	if pin != nil {
		if lo != nil && (pin.LessThan(lo) || (pin.Equal(lo) && !loInc)) {
			return fmt.Sprintf("pin %s is below lower bound %s", pin, lo)
		}
		if hi != nil && (pin.GreaterThan(hi) || (pin.Equal(hi) && !hiInc)) {
			return fmt.Sprintf("pin %s is above upper bound %s", pin, hi)
		}
		for _, excl := range exclusions {
			if pin.Equal(excl) {
				return fmt.Sprintf("pin %s is excluded by != %s", pin, excl)
			}
		}
		return ""
	}

	if lo != nil && hi != nil {
		if lo.GreaterThan(hi) {
			return fmt.Sprintf("ranges do not overlap: >%s and <%s", boundString(lo, loInc), boundString(hi, hiInc))
		}
		if lo.Equal(hi) {
			if !loInc || !hiInc {
				return fmt.Sprintf("ranges do not overlap: >%s and <%s", boundString(lo, loInc), boundString(hi, hiInc))
			}
			for _, excl := range exclusions {
				if excl.Equal(lo) {
					return fmt.Sprintf("only candidate %s is excluded by != %s", lo, excl)
				}
			}
		}
	}

	return ""
}

func boundString(v *version.Version, inclusive bool) string {
	if inclusive {
		return "= " + v.String()
	}
	return " " + v.String()
}

// pessimisticUpper returns the exclusive upper bound implied by a
// pessimistic constraint: ~> 1.8 allows < 2.0, ~> 1.8.2 allows < 1.9.
func pessimisticUpper(part constraintPart) *version.Version {
	segments := part.ver.Segments64()
	idx := part.precision - 2
	if idx < 0 {
		idx = 0
	}
	bumped := make([]string, 0, idx+1)
	for i := 0; i < idx; i++ {
		bumped = append(bumped, fmt.Sprintf("%d", segments[i]))
	}
	bumped = append(bumped, fmt.Sprintf("%d", segments[idx]+1))
	upper, err := version.NewVersion(strings.Join(bumped, "."))
	if err != nil {
		// Segments are numeric, so this cannot fail
		return part.ver
	}
	return upper
}
