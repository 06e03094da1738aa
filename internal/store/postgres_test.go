//go:build integration

package store_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/store"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// newPostgresStore opens a PostgresStore against ODINSCHEDULER_TEST_PG_*
// and runs migrations, grounded on jordigilh-kubernaut's database-only
// integration test pattern (a real Postgres, gated by a build tag rather
// than mocked). Skips when the host isn't configured, since this needs
// an actual database and carries no embedded server of its own.
func newPostgresStore(t *testing.T) store.Store {
	t.Helper()
	host := os.Getenv("ODINSCHEDULER_TEST_PG_HOST")
	if host == "" {
		t.Skip("ODINSCHEDULER_TEST_PG_HOST not set, skipping Postgres integration test")
	}
	port, err := strconv.Atoi(os.Getenv("ODINSCHEDULER_TEST_PG_PORT"))
	require.NoError(t, err, "ODINSCHEDULER_TEST_PG_PORT must be set alongside ODINSCHEDULER_TEST_PG_HOST")

	cfg := store.Config{
		Backend:        store.BackendPostgres,
		Host:           host,
		Port:           port,
		User:           os.Getenv("ODINSCHEDULER_TEST_PG_USER"),
		Passwd:         os.Getenv("ODINSCHEDULER_TEST_PG_PASSWORD"),
		ConnectTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	pg, err := store.NewPostgresStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(pg.DB()))

	t.Cleanup(func() {
		_, _ = pg.DB().Exec(`TRUNCATE task_runs, pipeline_runs CASCADE`)
	})
	return pg
}

// TestPostgresStore_TaskSpecRoundTrip is the Resume regression test: the
// full TaskDefinition-derived fields (depends, command, args, mounts,
// node selector, GPUs, workers, env, retry limit) must survive a
// Create/Fetch round trip through the relational backend exactly as the
// document backend already does, or Executor.Resume rebuilds a graph
// with no dependency edges and empty commands after a restart.
func TestPostgresStore_TaskSpecRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	label := "flow-pgtest"
	pr := &types.PipelineRun{Label: label, Job: "demo", Status: types.PipelineRunning, SubmitTime: time.Now()}
	require.NoError(t, s.CreatePipelineRun(ctx, pr))

	gpus, workers, retry := 2, 4, 3
	task := &types.TaskRun{
		Label:        types.TaskLabel(label, "train"),
		Parent:       label,
		Name:         "train",
		Image:        "pytorch:latest",
		Command:      []string{"python"},
		Args:         []string{"train.py", "--epochs", "10"},
		Resource:     types.ResourcePyTorchJob,
		Status:       types.TaskWaiting,
		Mounts:       []types.VolumeMount{{Claim: "data-pvc", Name: "data", Path: "/data"}},
		Secrets:      []string{"s3-creds"},
		ConfigMaps:   []string{"train-config"},
		NodeSelector: map[string]string{"gpu-type": "a100"},
		PullPolicy:   "Always",
		NumGPUs:      &gpus,
		NumWorkers:   &workers,
		Env:          map[string]string{"LR": "0.01"},
		RetryLimit:   &retry,
		Depends:      "prep",
	}
	require.NoError(t, s.CreateTaskRun(ctx, task))

	got, err := s.FetchTaskRunByLabel(ctx, task.Label)
	require.NoError(t, err)

	assert.Equal(t, task.Command, got.Command)
	assert.Equal(t, task.Args, got.Args)
	assert.Equal(t, task.Mounts, got.Mounts)
	assert.Equal(t, task.Secrets, got.Secrets)
	assert.Equal(t, task.ConfigMaps, got.ConfigMaps)
	assert.Equal(t, task.NodeSelector, got.NodeSelector)
	assert.Equal(t, task.PullPolicy, got.PullPolicy)
	require.NotNil(t, got.NumGPUs)
	assert.Equal(t, *task.NumGPUs, *got.NumGPUs)
	require.NotNil(t, got.NumWorkers)
	assert.Equal(t, *task.NumWorkers, *got.NumWorkers)
	assert.Equal(t, task.Env, got.Env)
	require.NotNil(t, got.RetryLimit)
	assert.Equal(t, *task.RetryLimit, *got.RetryLimit)
	assert.Equal(t, "prep", got.Depends)

	tasks, err := s.TaskRunsForPipeline(ctx, label)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "prep", tasks[0].Depends)
}
