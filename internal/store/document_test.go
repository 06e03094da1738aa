package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/store"
	"github.com/linlanniao/odinscheduler/internal/types"
)

func newDocStore(t *testing.T) *store.DocumentStore {
	t.Helper()
	s, err := store.NewDocumentStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestDocumentStore_CreateAndFetchPipelineRun(t *testing.T) {
	s := newDocStore(t)
	ctx := context.Background()

	run := &types.PipelineRun{Label: "run-1", Job: "demo", Status: types.PipelineSubmitted, SubmitTime: time.Now()}
	require.NoError(t, s.CreatePipelineRun(ctx, run))

	got, err := s.FetchPipelineRunByLabel(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Job)
}

func TestDocumentStore_DuplicateLabelRejected(t *testing.T) {
	s := newDocStore(t)
	ctx := context.Background()

	run := &types.PipelineRun{Label: "run-1", Job: "demo", Status: types.PipelineSubmitted, SubmitTime: time.Now()}
	require.NoError(t, s.CreatePipelineRun(ctx, run))
	assert.Error(t, s.CreatePipelineRun(ctx, run))
}

func TestDocumentStore_TaskRunLifecycle(t *testing.T) {
	s := newDocStore(t)
	ctx := context.Background()

	run := &types.PipelineRun{Label: "run-1", Job: "demo", Status: types.PipelineSubmitted, SubmitTime: time.Now()}
	require.NoError(t, s.CreatePipelineRun(ctx, run))

	task := &types.TaskRun{Label: "run-1--a", Parent: "run-1", Name: "a", Status: types.TaskWaiting}
	require.NoError(t, s.CreateTaskRun(ctx, task))

	require.NoError(t, s.UpdateTaskRunByLabel(ctx, "run-1--a", func(t *types.TaskRun) error {
		return t.Transition(types.TaskBuilding)
	}))

	got, err := s.FetchTaskRunByLabel(ctx, "run-1--a")
	require.NoError(t, err)
	assert.Equal(t, types.TaskBuilding, got.Status)

	tasks, err := s.TaskRunsForPipeline(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, s.DeleteTaskRunsForPipeline(ctx, "run-1"))
	tasks, err = s.TaskRunsForPipeline(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDocumentStore_NonTerminalPipelineRuns(t *testing.T) {
	s := newDocStore(t)
	ctx := context.Background()

	running := &types.PipelineRun{Label: "run-running", Status: types.PipelineRunning, SubmitTime: time.Now()}
	done := &types.PipelineRun{Label: "run-done", Status: types.PipelineDone, SubmitTime: time.Now()}
	require.NoError(t, s.CreatePipelineRun(ctx, running))
	require.NoError(t, s.CreatePipelineRun(ctx, done))

	pending, err := s.NonTerminalPipelineRuns(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "run-running", pending[0].Label)
}

func TestDocumentStore_FetchMissingLabel(t *testing.T) {
	s := newDocStore(t)
	_, err := s.FetchPipelineRunByLabel(context.Background(), "ghost")
	assert.Error(t, err)
}
