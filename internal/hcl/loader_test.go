package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad_FullTaskBlock(t *testing.T) {
	t.Parallel()

	dir := writeGrid(t, map[string]string{"grid.hcl": `
task "shell" "build" {
  name       = "Build the artifact"
  depends_on = ["fetch"]
  priority   = 5
  duration   = "30s"
  retries    = 2
  timeout    = "2m"
  idempotent = true

  resources {
    cpu       = 50
    memory    = 512
    exclusive = false
  }

  arguments {
    command = "make build"
    jobs    = 4
  }
}

task "sleep" "fetch" {}
`})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Tasks, 2)

	build := model.Tasks[0]
	assert.Equal(t, "build", build.ID)
	assert.Equal(t, "shell", build.Kind)
	assert.Equal(t, "Build the artifact", build.Name)
	assert.Equal(t, []string{"fetch"}, build.DependsOn)
	assert.Equal(t, 5, build.Priority)
	assert.Equal(t, 30*time.Second, build.EstDuration)
	assert.Equal(t, 2, build.MaxRetries)
	assert.Equal(t, 2*time.Minute, build.Timeout)
	assert.True(t, build.Idempotent)
	assert.Equal(t, 50, build.Resources.CPUPercent)
	assert.Equal(t, 512, build.Resources.MemoryMB)
	assert.False(t, build.Resources.Exclusive)
	// Non-string argument values are stringified.
	assert.Equal(t, map[string]string{"command": "make build", "jobs": "4"}, build.Args)
}

func TestLoad_DefaultsApply(t *testing.T) {
	t.Parallel()

	dir := writeGrid(t, map[string]string{"grid.hcl": `
task "sleep" "a" {}
`})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	// The omitted estimate falls back to one second.
	assert.Equal(t, time.Second, model.Tasks[0].EstDuration)

	// Unset settings normalize to the documented defaults.
	assert.Equal(t, 100, model.Settings.Limits.CPUPercent)
	assert.Equal(t, 3, model.Settings.Retry.MaxRetries)
	assert.NotZero(t, model.Settings.Weights.Dependents)
	assert.Equal(t, 3, model.Settings.StarvationRounds)
}

func TestLoad_SettingsBlock(t *testing.T) {
	t.Parallel()

	dir := writeGrid(t, map[string]string{"grid.hcl": `
task "sleep" "a" {}

settings {
  starvation_rounds = 7

  limits {
    cpu             = 200
    memory          = 8192
    exclusive_slots = 2
  }

  retry {
    max_retries = 5
    base_delay  = "250ms"
    max_delay   = "10s"
  }

  weights {
    dependents          = 20
    inverse_duration    = 2
    critical_path_boost = 50
  }
}
`})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	s := model.Settings
	assert.Equal(t, 200, s.Limits.CPUPercent)
	assert.Equal(t, 8192, s.Limits.MemoryMB)
	assert.Equal(t, 2, s.Limits.ExclusiveSlots)
	assert.Equal(t, 5, s.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, s.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, s.Retry.MaxDelay)
	assert.Equal(t, 20.0, s.Weights.Dependents)
	assert.Equal(t, 7, s.StarvationRounds)
}

func TestLoad_MergesAcrossFiles(t *testing.T) {
	t.Parallel()

	dir := writeGrid(t, map[string]string{
		"one.hcl":        `task "sleep" "a" {}`,
		"nested/two.hcl": `task "sleep" "b" {}`,
	})

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Tasks, 2)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"bad.hcl": `task "sleep" {`},
			wantErr: "failed to parse",
		},
		{
			name:    "bad duration",
			files:   map[string]string{"bad.hcl": `task "sleep" "a" { duration = "soon" }`},
			wantErr: "invalid duration",
		},
		{
			name:    "negative timeout",
			files:   map[string]string{"bad.hcl": `task "sleep" "a" { timeout = "-5s" }`},
			wantErr: "negative timeout",
		},
		{
			name: "duplicate settings",
			files: map[string]string{
				"one.hcl": `settings {}`,
				"two.hcl": `settings {}`,
			},
			wantErr: "duplicate settings",
		},
		{
			name:    "empty directory",
			files:   map[string]string{},
			wantErr: "no .hcl files",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeGrid(t, tc.files)
			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_SingleFilePath(t *testing.T) {
	t.Parallel()

	dir := writeGrid(t, map[string]string{"grid.hcl": `task "sleep" "a" {}`})

	model, err := NewLoader().Load(context.Background(), filepath.Join(dir, "grid.hcl"))
	require.NoError(t, err)
	require.Len(t, model.Tasks, 1)
}
