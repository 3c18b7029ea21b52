package integrationtests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/testutil"
)

func TestRun_DiamondGrid(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "sleeper" "fetch" {}

task "sleeper" "build" {
  depends_on = ["fetch"]
}

task "sleeper" "test" {
  depends_on = ["fetch"]
}

task "sleeper" "publish" {
  depends_on = ["build", "test"]
}
`}
	sleeper := testutil.NewSleeperModule(10 * time.Millisecond)

	result := testutil.RunIntegrationTest(t, files, sleeper)

	require.NoError(t, result.Err)
	require.NotNil(t, result.Report)
	assert.True(t, result.Report.AllSucceeded())

	// The fan-out pair ran concurrently, the join waited for both.
	build, tst := sleeper.Record("build"), sleeper.Record("test")
	require.NotNil(t, build)
	require.NotNil(t, tst)
	assert.True(t, build.Overlaps(tst), "build and test are independent and should overlap")

	publish := sleeper.Record("publish")
	require.NotNil(t, publish)
	assert.False(t, publish.Start.Before(build.End))
	assert.False(t, publish.Start.Before(tst.End))
}

func TestRun_ReportCarriesCriticalPath(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "sleeper" "a" {
  duration = "10s"
}

task "sleeper" "b" {
  depends_on = ["a"]
  duration   = "20s"
}

task "sleeper" "c" {
  duration = "1s"
}
`}
	sleeper := testutil.NewSleeperModule(time.Millisecond)

	result := testutil.RunIntegrationTest(t, files, sleeper)

	require.NoError(t, result.Err)
	require.NotNil(t, result.Report)
	assert.Equal(t, []string{"a", "b"}, result.Report.PlannedCriticalPath)
	assert.Equal(t, 30*time.Second, result.Report.PlannedCriticalPathLength)
	assert.NotEmpty(t, result.Report.ActualCriticalPath)
}

func TestRun_ResourceLimitsFromSettings(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "sleeper" "left" {
  resources {
    cpu = 60
  }
}

task "sleeper" "right" {
  resources {
    cpu = 60
  }
}

settings {
  limits {
    cpu = 100
  }
}
`}
	sleeper := testutil.NewSleeperModule(20 * time.Millisecond)

	result := testutil.RunIntegrationTest(t, files, sleeper)

	require.NoError(t, result.Err)
	left, right := sleeper.Record("left"), sleeper.Record("right")
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.False(t, left.Overlaps(right), "60%%+60%% cannot fit a 100%% budget")
}

func TestRun_UnknownKindFailsStartup(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `task "warp_drive" "a" {}`}

	result := testutil.RunIntegrationTest(t, files, &testutil.NoOpModule{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "startup panicked")
	assert.Contains(t, result.Err.Error(), "warp_drive")
}

func TestRun_EmptyGridSucceeds(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
settings {}
`}

	result := testutil.RunIntegrationTest(t, files, &testutil.NoOpModule{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "No tasks found")
}
