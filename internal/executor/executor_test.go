package executor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/executor"
	"github.com/linlanniao/odinscheduler/internal/handlers"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// memStore is a minimal in-memory store.Store fake: enough to drive the
// Executor's reconciliation loop deterministically in tests.
type memStore struct {
	mu    sync.Mutex
	runs  map[string]*types.PipelineRun
	tasks map[string]*types.TaskRun
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]*types.PipelineRun{}, tasks: map[string]*types.TaskRun{}}
}

func (s *memStore) CreatePipelineRun(_ context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Label] = run
	return nil
}

func (s *memStore) UpdatePipelineRun(_ context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Label] = run
	return nil
}

func (s *memStore) FetchPipelineRunByLabel(_ context.Context, label string) (*types.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[label]
	if !ok {
		return nil, fmt.Errorf("no such pipeline run %q", label)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) SearchPipelineRuns(_ context.Context, _ string) ([]*types.PipelineRun, error) {
	return nil, nil
}

func (s *memStore) DeletePipelineRun(_ context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, label)
	return nil
}

func (s *memStore) NonTerminalPipelineRuns(_ context.Context) ([]*types.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.PipelineRun
	for _, r := range s.runs {
		switch r.Status {
		case types.PipelineDone, types.PipelineTerminated, types.PipelineFailed:
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) CreateTaskRun(_ context.Context, t *types.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.Label] = t
	return nil
}

func (s *memStore) UpdateTaskRunByLabel(_ context.Context, label string, mutate func(*types.TaskRun) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[label]
	if !ok {
		return fmt.Errorf("no such task run %q", label)
	}
	return mutate(t)
}

func (s *memStore) FetchTaskRunByLabel(_ context.Context, label string) (*types.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[label]
	if !ok {
		return nil, fmt.Errorf("no such task run %q", label)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) TaskRunsForPipeline(_ context.Context, parentLabel string) ([]*types.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.TaskRun
	for _, t := range s.tasks {
		if t.Parent == parentLabel {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) DeleteTaskRunsForPipeline(_ context.Context, parentLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, t := range s.tasks {
		if t.Parent == parentLabel {
			delete(s.tasks, label)
		}
	}
	return nil
}

// fakeHandler resolves every submitted task to TaskExecuted on the first
// Status call, never touching a real cluster.
type fakeHandler struct {
	kind      types.ResourceKind
	failNames map[string]bool
}

func (h *fakeHandler) Kind() types.ResourceKind { return h.kind }

func (h *fakeHandler) Submit(_ context.Context, t *types.TaskRun) (string, error) {
	if h.failNames[t.Name] {
		return "", fmt.Errorf("injected submit failure for %s", t.Name)
	}
	return "resource-" + t.Label, nil
}

func (h *fakeHandler) Status(_ context.Context, t *types.TaskRun) (types.TaskStatus, error) {
	return types.TaskExecuted, nil
}

func (h *fakeHandler) Events(_ context.Context, _ *types.TaskRun) ([]handlers.Event, error) {
	return nil, nil
}

func (h *fakeHandler) Logs(_ context.Context, _ *types.TaskRun, _ bool, out chan<- cluster.LogLine) error {
	close(out)
	return nil
}

func (h *fakeHandler) Delete(_ context.Context, _ *types.TaskRun, _ handlers.DeleteMode) error {
	return nil
}

func newTestExecutor(st *memStore, registry *handlers.Registry, def *types.PipelineDefinition) *executor.Executor {
	loader := func(name string) (*types.PipelineDefinition, error) { return def, nil }
	return executor.New(executor.Config{
		RootPath:     "/pipelines",
		DataRoot:     "/var/lib/odinscheduler/runs",
		TickInterval: 10 * time.Millisecond,
	}, st, registry, loader)
}

func waitForTerminal(t *testing.T, st *memStore, label string) *types.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pr, err := st.FetchPipelineRunByLabel(context.Background(), label)
		require.NoError(t, err)
		if pr.Status == types.PipelineDone || pr.Status == types.PipelineFailed || pr.Status == types.PipelineTerminated {
			return pr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pipeline run did not reach a terminal state in time")
	return nil
}

func TestSubmit_LinearPipelineRunsToDone(t *testing.T) {
	def := &types.PipelineDefinition{
		Name: "demo",
		Tasks: []*types.TaskDefinition{
			{Name: "a", Image: "alpine", ResourceType: types.ResourcePod},
			{Name: "b", Image: "alpine", ResourceType: types.ResourcePod, Depends: "a"},
		},
	}
	st := newMemStore()
	registry := handlers.NewRegistryWithHandlers(map[types.ResourceKind]handlers.Handler{
		types.ResourcePod: &fakeHandler{kind: types.ResourcePod},
	})
	exec := newTestExecutor(st, registry, def)

	label, err := exec.Submit(context.Background(), "demo")
	require.NoError(t, err)

	pr := waitForTerminal(t, st, label)
	assert.Equal(t, types.PipelineDone, pr.Status)

	tasks, _ := st.TaskRunsForPipeline(context.Background(), label)
	for _, tr := range tasks {
		assert.Equal(t, types.TaskExecuted, tr.Status)
	}
}

func TestSubmit_FailurePropagatesAndTerminatesDependents(t *testing.T) {
	def := &types.PipelineDefinition{
		Name: "demo",
		Tasks: []*types.TaskDefinition{
			{Name: "a", Image: "alpine", ResourceType: types.ResourcePod},
			{Name: "b", Image: "alpine", ResourceType: types.ResourcePod, Depends: "a"},
		},
	}
	st := newMemStore()
	registry := handlers.NewRegistryWithHandlers(map[types.ResourceKind]handlers.Handler{
		types.ResourcePod: &fakeHandler{kind: types.ResourcePod, failNames: map[string]bool{"a": true}},
	})
	exec := newTestExecutor(st, registry, def)

	label, err := exec.Submit(context.Background(), "demo")
	require.NoError(t, err)

	pr := waitForTerminal(t, st, label)
	assert.Equal(t, types.PipelineFailed, pr.Status)

	taskA, err := st.FetchTaskRunByLabel(context.Background(), types.TaskLabel(label, "a"))
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, taskA.Status)

	taskB, err := st.FetchTaskRunByLabel(context.Background(), types.TaskLabel(label, "b"))
	require.NoError(t, err)
	assert.Equal(t, types.TaskTerminated, taskB.Status)
}

func TestCancel_TerminatesNonTerminalTasks(t *testing.T) {
	def := &types.PipelineDefinition{
		Name: "demo",
		Tasks: []*types.TaskDefinition{
			{Name: "a", Image: "alpine", ResourceType: types.ResourcePod},
		},
	}
	st := newMemStore()
	blocking := &blockingHandler{kind: types.ResourcePod}
	registry := handlers.NewRegistryWithHandlers(map[types.ResourceKind]handlers.Handler{
		types.ResourcePod: blocking,
	})
	exec := newTestExecutor(st, registry, def)

	label, err := exec.Submit(context.Background(), "demo")
	require.NoError(t, err)

	// give the reconciliation loop a tick to submit the task, then cancel
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, exec.Cancel(label))

	pr := waitForTerminal(t, st, label)
	assert.Equal(t, types.PipelineTerminated, pr.Status)
}

// TestResume_RecoversTaskStuckBuildingWithNoResourceID exercises the
// restart path of a TaskRun left BUILDING with resource_id unset: the
// store write that binds resource_id and moves a task to EXECUTING can
// fail after handler.Submit already ran, leaving exactly this state
// (executor.go submitTask). ReadySet must treat it as ready again so
// Resume's reconciliation loop resubmits it rather than stalling
// forever in BUILDING.
func TestResume_RecoversTaskStuckBuildingWithNoResourceID(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	label := "flow-resume1"
	pr := &types.PipelineRun{Label: label, Job: "demo", Status: types.PipelineRunning, SubmitTime: time.Now()}
	require.NoError(t, st.CreatePipelineRun(ctx, pr))

	task := &types.TaskRun{
		Label:    types.TaskLabel(label, "a"),
		Parent:   label,
		Name:     "a",
		Image:    "alpine",
		Resource: types.ResourcePod,
		Status:   types.TaskBuilding, // stuck: resource_id never bound
	}
	require.NoError(t, st.CreateTaskRun(ctx, task))

	def := &types.PipelineDefinition{
		Name:  "demo",
		Tasks: []*types.TaskDefinition{{Name: "a", Image: "alpine", ResourceType: types.ResourcePod}},
	}
	registry := handlers.NewRegistryWithHandlers(map[types.ResourceKind]handlers.Handler{
		types.ResourcePod: &fakeHandler{kind: types.ResourcePod},
	})
	exec := newTestExecutor(st, registry, def)

	require.NoError(t, exec.Resume(ctx))

	got := waitForTerminal(t, st, label)
	assert.Equal(t, types.PipelineDone, got.Status)

	taskA, err := st.FetchTaskRunByLabel(ctx, types.TaskLabel(label, "a"))
	require.NoError(t, err)
	assert.Equal(t, types.TaskExecuted, taskA.Status)
	assert.NotEmpty(t, taskA.ResourceID)
}

// blockingHandler submits successfully but never reports EXECUTED, so
// Cancel has something non-terminal to act on.
type blockingHandler struct {
	kind types.ResourceKind
}

func (h *blockingHandler) Kind() types.ResourceKind { return h.kind }

func (h *blockingHandler) Submit(_ context.Context, t *types.TaskRun) (string, error) {
	return "resource-" + t.Label, nil
}

func (h *blockingHandler) Status(_ context.Context, _ *types.TaskRun) (types.TaskStatus, error) {
	return types.TaskExecuting, nil
}

func (h *blockingHandler) Events(_ context.Context, _ *types.TaskRun) ([]handlers.Event, error) {
	return nil, nil
}

func (h *blockingHandler) Logs(_ context.Context, _ *types.TaskRun, _ bool, out chan<- cluster.LogLine) error {
	close(out)
	return nil
}

func (h *blockingHandler) Delete(_ context.Context, _ *types.TaskRun, _ handlers.DeleteMode) error {
	return nil
}
