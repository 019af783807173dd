package matrix_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrun/matrix"
)

func TestLoadProjects(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "webapp")
	require.NoError(t, os.MkdirAll(projectDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "matrun.yml"), []byte("stages:\n  - name: test\n"), 0644))

	projectsPath := filepath.Join(dir, "projects.yml")
	content := `
projects:
  - name: webapp
    path: webapp
    description: The web application
  - name: ghost
    path: does-not-exist
`
	require.NoError(t, os.WriteFile(projectsPath, []byte(content), 0644))

	cfg, err := matrix.LoadProjects(projectsPath)
	require.NoError(t, err)
	require.Len(t, cfg.Projects, 2)

	webapp, err := cfg.GetProject("webapp")
	require.NoError(t, err)
	assert.NoError(t, webapp.Validate(dir))
	assert.Equal(t, filepath.Join(projectDir, "matrun.yml"), webapp.GetMatrixPath(dir))

	ghost, err := cfg.GetProject("ghost")
	require.NoError(t, err)
	assert.Error(t, ghost.Validate(dir))

	_, err = cfg.GetProject("nope")
	assert.Error(t, err)
}

func TestProjectValidateRequiresMatrixFile(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(projectDir, 0755))

	project := matrix.Project{Name: "empty", Path: "empty"}
	err := project.Validate(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrun.yml")
}
