package matrix_test

import (
	"testing"

	version "github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrun/matrix"
)

func TestParseDependencyBareName(t *testing.T) {
	dep, err := matrix.ParseDependency("pytest")
	require.NoError(t, err)
	assert.Equal(t, "pytest", dep.Name)
	assert.True(t, dep.Matches(version.Must(version.NewVersion("0.1"))))
}

func TestParseDependencyWithConstraints(t *testing.T) {
	dep, err := matrix.ParseDependency("django >= 1.8, < 1.9")
	require.NoError(t, err)
	assert.Equal(t, "django", dep.Name)

	assert.True(t, dep.Matches(version.Must(version.NewVersion("1.8.5"))))
	assert.False(t, dep.Matches(version.Must(version.NewVersion("1.9.0"))))
	assert.False(t, dep.Matches(version.Must(version.NewVersion("1.7"))))
}

func TestParseDependencyInvalid(t *testing.T) {
	cases := []string{
		"",
		">= 1.8",
		"django >= banana",
	}
	for _, input := range cases {
		_, err := matrix.ParseDependency(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestResolveDependenciesSatisfiable(t *testing.T) {
	deps, err := matrix.ResolveDependencies("py36-dj18", []string{
		"django >= 1.8, < 1.9",
		"pytest >= 4.0",
		"pytest < 5.0",
		"coverage",
	})
	require.NoError(t, err)
	assert.Len(t, deps, 4)
}

func TestResolveDependenciesUnsatisfiable(t *testing.T) {
	cases := []struct {
		name string
		deps []string
	}{
		{"non-overlapping ranges", []string{"django >= 1.9", "django < 1.9"}},
		{"conflicting pins", []string{"django = 1.8", "django = 1.9"}},
		{"pin outside range", []string{"django = 1.8", "django >= 1.10"}},
		{"single point excluded", []string{"django >= 1.9, <= 1.9", "django != 1.9"}},
		{"pessimistic vs floor", []string{"django ~> 1.8", "django >= 2.0"}},
		{"ranges in one declaration", []string{"django >= 1.10, < 1.9"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := matrix.ResolveDependencies("env", tc.deps)
			var depErr *matrix.DependencyResolutionError
			require.ErrorAs(t, err, &depErr)
			assert.Equal(t, "env", depErr.Env)
			assert.Equal(t, "django", depErr.Dep)
		})
	}
}

func TestResolveDependenciesPessimistic(t *testing.T) {
	// ~> 1.8.2 allows anything below 1.9
	_, err := matrix.ResolveDependencies("env", []string{"django ~> 1.8.2", "django < 1.9"})
	require.NoError(t, err)

	// but nothing at 1.9 or above
	_, err = matrix.ResolveDependencies("env", []string{"django ~> 1.8.2", "django >= 1.9"})
	var depErr *matrix.DependencyResolutionError
	require.ErrorAs(t, err, &depErr)
}

func TestResolveDependenciesMalformed(t *testing.T) {
	_, err := matrix.ResolveDependencies("env", []string{"django >>> 1.8"})
	var depErr *matrix.DependencyResolutionError
	require.ErrorAs(t, err, &depErr)
}
