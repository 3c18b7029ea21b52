package integrationtests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/testutil"
)

func TestRun_FlakyTaskRetriesToSuccess(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "flaky" "wobbly" {
  retries = 5
}

settings {
  retry {
    base_delay = "1ms"
    max_delay  = "5ms"
  }
}
`}
	flaky := testutil.NewFlakyModule(2)

	result := testutil.RunIntegrationTest(t, files, flaky)

	require.NoError(t, result.Err)
	require.NotNil(t, result.Report)
	assert.True(t, result.Report.AllSucceeded())
	assert.Equal(t, 3, flaky.Attempts("wobbly"))

	// The report keeps the audited failure history.
	require.Len(t, result.Report.Tasks, 1)
	assert.Len(t, result.Report.Tasks[0].History, 2)
}

func TestRun_FatalFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "failer" "doomed" {}

task "noop" "downstream" {
  depends_on = ["doomed"]
}

task "noop" "unrelated" {}
`}

	result := testutil.RunIntegrationTest(t, files, &testutil.FailerModule{}, &testutil.NoOpModule{})

	require.Error(t, result.Err)
	require.NotNil(t, result.Report)
	assert.Equal(t, []string{"doomed"}, result.Report.IDsWithStatus(task.StatusFailed))
	assert.Equal(t, []string{"downstream"}, result.Report.IDsWithStatus(task.StatusSkipped))
	assert.Equal(t, []string{"unrelated"}, result.Report.IDsWithStatus(task.StatusSucceeded))
	assert.Contains(t, result.LogOutput, "skipped")
}

func TestRun_TimeoutFailsTask(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `
task "sleeper" "slow" {
  timeout = "10ms"
  retries = 1
}
`}
	sleeper := testutil.NewSleeperModule(time.Second)

	result := testutil.RunIntegrationTest(t, files, sleeper)

	require.Error(t, result.Err)
	require.NotNil(t, result.Report)
	require.Len(t, result.Report.Tasks, 1)
	assert.Equal(t, task.StatusFailed.String(), result.Report.Tasks[0].Status)
	assert.Equal(t, "timeout_exceeded", result.Report.Tasks[0].ErrorKind)
}

func TestRun_SummaryWrittenToOutput(t *testing.T) {
	t.Parallel()

	files := map[string]string{"grid.hcl": `task "noop" "only" {}`}

	result := testutil.RunIntegrationTest(t, files, &testutil.NoOpModule{})

	require.NoError(t, result.Err)
	assert.Contains(t, result.LogOutput, "1 tasks")
	assert.Contains(t, result.LogOutput, "succeeded")
}
