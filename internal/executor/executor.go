// Package executor drives the DAG to completion (spec §4.6): computing
// the ready set, submitting tasks through their Handler, observing
// EXECUTING tasks, and finalizing the PipelineRun. Grounded on the
// teacher's kbatch/alpha/v2/manager.go: RunTask/CleanupTask become the
// per-TaskRun submit/cleanup path, onJobAddedUpdated's terminal-state
// dispatch becomes the observe-and-advance step, and
// taskTracker/jobTracker (trackers.go) become the in-memory
// reconciliation state rebuilt from the Jobs Store on restart.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/linlanniao/odinscheduler/internal/dag"
	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/handlers"
	"github.com/linlanniao/odinscheduler/internal/metrics"
	"github.com/linlanniao/odinscheduler/internal/store"
	"github.com/linlanniao/odinscheduler/internal/template"
	"github.com/linlanniao/odinscheduler/internal/types"
	"github.com/linlanniao/odinscheduler/internal/validate"
)

// PipelineLoader resolves a pipeline name to its definition, reading
// <root>/<pipeline>/main.<ext> (spec §6 Pipelines root layout).
type PipelineLoader func(pipelineName string) (*types.PipelineDefinition, error)

// Config bundles the Executor's tunables (spec §5 Concurrency, §4.3
// Timeouts).
type Config struct {
	RootPath      string
	DataRoot      string
	TickInterval  time.Duration
	DeleteOnCleanup bool
}

// run is the Executor's in-memory state for one active PipelineRun:
// the DAG plus the goroutine controls needed to cancel it.
type run struct {
	mu          sync.Mutex
	graph       *dag.Graph
	cancel      context.CancelFunc
	canceled    bool
	runningOnce sync.Once
	lockToken   string
}

// Executor is the component of spec §4.6.
type Executor struct {
	cfg      Config
	store    store.Store
	registry *handlers.Registry
	loader   PipelineLoader
	lock     *store.ReconciliationLock

	mu   sync.Mutex
	runs map[string]*run
	grp  *errgroup.Group
}

func New(cfg Config, st store.Store, registry *handlers.Registry, loader PipelineLoader) *Executor {
	return &Executor{
		cfg:      cfg,
		store:    st,
		registry: registry,
		loader:   loader,
		runs:     make(map[string]*run),
		grp:      &errgroup.Group{},
	}
}

// WithReconciliationLock attaches the Redis-backed lock multiple core
// processes use to avoid double-reconciling the same PipelineRun after
// a restart (spec §4.8, internal/store/lock.go). Optional: a nil lock
// (the zero-value Executor from New) reconciles without it, correct for
// a single-process deployment.
func (e *Executor) WithReconciliationLock(l *store.ReconciliationLock) *Executor {
	e.lock = l
	return e
}

// Submit implements spec §4.6 point 1: expand, build the DAG, persist
// the PipelineRun (all tasks WAITING) and enter the reconciliation loop.
func (e *Executor) Submit(ctx context.Context, pipelineName string) (string, error) {
	def, err := e.loader(pipelineName)
	if err != nil {
		return "", errs.Validation("loading pipeline %q: %v", pipelineName, err)
	}
	// Composed through validate.Validate rather than a direct
	// def.Validate() call: def's cross-field checks are exactly the
	// rules a struct tag can't express, which is what the Validator
	// composition exists for. Cycles are caught later, by dag.Build.
	if err := validate.Validate(def); err != nil {
		return "", errs.Validation("%v", err)
	}

	label := NewPipelineLabel()
	runPath := filepath.Join(e.cfg.DataRoot, label)

	expanded := make([]*types.TaskDefinition, len(def.Tasks))
	for i, td := range def.Tasks {
		v := template.Vars{
			RootPath: e.cfg.RootPath,
			WorkPath: def.WorkPath,
			RunPath:  runPath,
			TaskID:   types.TaskLabel(label, td.Name),
			TaskName: td.Name,
			PipeID:   label,
		}
		expanded[i] = template.ExpandTask(td, v)
	}

	graph, err := dag.Build(label, expanded)
	if err != nil {
		return "", err
	}

	pr := &types.PipelineRun{
		Label:      label,
		Job:        def.Name,
		Status:     types.PipelineSubmitted,
		SubmitTime: timeNow(),
	}
	if err := e.store.CreatePipelineRun(ctx, pr); err != nil {
		return "", err
	}
	for _, n := range graph.Nodes {
		if err := e.store.CreateTaskRun(ctx, n.Task); err != nil {
			return "", err
		}
		pr.Children = append(pr.Children, n.Task.Label)
	}

	e.startReconciliation(label, graph)
	metrics.PipelinesSubmitted.Inc()
	return label, nil
}

// Resume implements spec §4.8 "the Executor on startup enumerates
// non-terminal PipelineRuns and resumes reconciliation", rebuilding
// each DAG from its stored TaskRuns (spec §5 "in-memory state ... is
// reconstructed from the store on restart").
func (e *Executor) Resume(ctx context.Context) error {
	pending, err := e.store.NonTerminalPipelineRuns(ctx)
	if err != nil {
		return err
	}
	for _, pr := range pending {
		tasks, err := e.store.TaskRunsForPipeline(ctx, pr.Label)
		if err != nil {
			klog.Errorf("resume %s: %v", pr.Label, err)
			continue
		}
		graph := rebuildGraph(pr.Label, tasks)
		e.startReconciliation(pr.Label, graph)
		klog.Infof("resumed reconciliation for %s (%d tasks)", pr.Label, len(tasks))
	}
	return nil
}

func (e *Executor) startReconciliation(label string, graph *dag.Graph) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{graph: graph, cancel: cancel}

	if e.lock != nil {
		token, acquired, err := e.lock.Acquire(ctx, label)
		if err != nil {
			klog.Warningf("acquire reconciliation lock for %s: %v", label, err)
		} else if !acquired {
			klog.Infof("another core already reconciling %s, skipping", label)
			cancel()
			return
		} else {
			r.lockToken = token
		}
	}

	e.mu.Lock()
	e.runs[label] = r
	e.mu.Unlock()

	e.grp.Go(func() error {
		e.reconcileLoop(ctx, label, r)
		return nil
	})
}

// Cancel implements spec §4.6 point 7 / §5 Cancellation: cooperative
// and idempotent, observed at the run's next reconciliation step.
func (e *Executor) Cancel(label string) error {
	e.mu.Lock()
	r, ok := e.runs[label]
	e.mu.Unlock()
	if !ok {
		return errs.ErrCancelRequested
	}
	r.mu.Lock()
	r.canceled = true
	r.mu.Unlock()
	return nil
}

func (e *Executor) reconcileLoop(ctx context.Context, label string, r *run) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.lock != nil && r.lockToken != "" {
				if err := e.lock.Renew(ctx, label, r.lockToken); err != nil {
					klog.Warningf("renew reconciliation lock for %s: %v", label, err)
				}
			}
			done, err := e.step(ctx, label, r)
			if err != nil {
				klog.Errorf("reconcile %s: %v", label, err)
				continue // StoreError: retry on next tick, per §7
			}
			if done {
				e.mu.Lock()
				delete(e.runs, label)
				e.mu.Unlock()
				if e.lock != nil && r.lockToken != "" {
					if err := e.lock.Release(ctx, label, r.lockToken); err != nil {
						klog.Warningf("release reconciliation lock for %s: %v", label, err)
					}
				}
				r.cancel()
				return
			}
		}
	}
}

// step runs one reconciliation tick for label (spec §4.6 points 2-6):
// submit every ready task in declaration order, observe every EXECUTING
// task, and finalize the PipelineRun once nothing remains WAITING or
// EXECUTING. Returns true once the run has reached a terminal state.
func (e *Executor) step(ctx context.Context, label string, r *run) (bool, error) {
	r.mu.Lock()
	canceled := r.canceled
	r.mu.Unlock()

	g := r.graph

	if canceled {
		return e.cancelStep(ctx, label, g)
	}

	ready := g.ReadySet()
	if len(ready) > 0 {
		r.runningOnce.Do(func() { e.promoteToRunning(ctx, label) })
	}
	for _, n := range ready {
		if err := e.submitTask(ctx, g, n); err != nil {
			return false, err
		}
	}

	for i, n := range g.Nodes {
		if n.Task.Status != types.TaskExecuting {
			continue
		}
		if err := e.observeTask(ctx, g, i, n); err != nil {
			return false, err
		}
	}

	return e.maybeFinalize(ctx, label, g)
}

// promoteToRunning flips a SUBMITTED PipelineRun to RUNNING the first
// time it has a task to submit (spec S1: SUBMITTED -> RUNNING -> DONE).
// Best-effort: a failure here just delays the visible status update to
// the next successful store call, it never blocks reconciliation.
func (e *Executor) promoteToRunning(ctx context.Context, label string) {
	pr, err := e.store.FetchPipelineRunByLabel(ctx, label)
	if err != nil || pr.Status != types.PipelineSubmitted {
		return
	}
	pr.Status = types.PipelineRunning
	if err := e.store.UpdatePipelineRun(ctx, pr); err != nil {
		klog.Warningf("promote %s to RUNNING: %v", label, err)
	}
}

// submitTask implements spec §4.6 point 3 and the WAITING->BUILDING->
// EXECUTING|FAILED transitions of §4.6's state machine. The store write
// precedes every status change this function makes observable, per §4.6
// "store-writes for status transitions must precede the externally
// observable acknowledgement".
func (e *Executor) submitTask(ctx context.Context, g *dag.Graph, n *dag.Node) error {
	t := n.Task

	handler, err := e.registry.Resolve(t.Resource)
	if err != nil {
		return e.failTask(ctx, g, n, err)
	}

	// Duplicate submit after a restart (spec §4.6 edge case): resource_id
	// is already bound, so rebind rather than resubmitting (I6).
	if t.ResourceID != "" {
		return e.transitionTask(ctx, t, types.TaskExecuting, nil)
	}

	if err := e.transitionTask(ctx, t, types.TaskBuilding, nil); err != nil {
		return err
	}

	resourceID, err := handler.Submit(ctx, t)
	if err != nil {
		return e.failTask(ctx, g, n, errs.Submit(t.Label, err))
	}

	// The in-memory TaskRun (shared with the DAG node) is only mutated
	// once the store write below succeeds. If it fails, t.ResourceID
	// stays empty both in the store and in memory, so ReadySet picks the
	// still-BUILDING task back up next tick instead of leaving it stuck.
	now := timeNow()
	if err := e.store.UpdateTaskRunByLabel(ctx, t.Label, func(stored *types.TaskRun) error {
		stored.ResourceID = resourceID
		stored.SubmitTime = &now
		return stored.Transition(types.TaskExecuting)
	}); err != nil {
		return errs.Store("mark task executing", err)
	}
	t.ResourceID = resourceID
	t.SubmitTime = &now
	t.Status = types.TaskExecuting
	metrics.TasksSubmitted.Inc()
	return nil
}

// observeTask implements spec §4.6 point 4: poll the Handler for the
// current status and, on a terminal observation, advance or terminate
// the DAG. A Handler error is an ObserveError (§7): transient, left for
// the next tick, since the Cluster Client already retries internally
// (gobreaker + exponential backoff, internal/cluster).
func (e *Executor) observeTask(ctx context.Context, g *dag.Graph, idx int, n *dag.Node) error {
	t := n.Task
	handler, err := e.registry.Resolve(t.Resource)
	if err != nil {
		return e.failTask(ctx, g, n, err)
	}

	status, err := handler.Status(ctx, t)
	if err != nil {
		klog.Warningf("observe %s: %v", t.Label, errs.Observe(t.Label, err))
		return nil
	}

	switch status {
	case types.TaskExecuted:
		now := timeNow()
		if err := e.store.UpdateTaskRunByLabel(ctx, t.Label, func(stored *types.TaskRun) error {
			stored.CompletionTime = &now
			return stored.Transition(types.TaskExecuted)
		}); err != nil {
			return errs.Store("mark task executed", err)
		}
		t.Status = types.TaskExecuted
		t.CompletionTime = &now
		g.Advance(idx)
		metrics.TasksExecuted.Inc()
	case types.TaskFailed:
		return e.failTask(ctx, g, n, fmt.Errorf("task %s observed FAILED", t.Label))
	}
	return nil
}

// failTask marks n's task FAILED, persists it, and terminates every
// task that transitively depends on it (spec §4.6 point 5) — those
// tasks are never submitted.
func (e *Executor) failTask(ctx context.Context, g *dag.Graph, n *dag.Node, cause error) error {
	t := n.Task
	msg := cause.Error()
	now := timeNow()
	if err := e.store.UpdateTaskRunByLabel(ctx, t.Label, func(stored *types.TaskRun) error {
		stored.CompletionTime = &now
		stored.ErrorMessage = &msg
		return stored.Transition(types.TaskFailed)
	}); err != nil {
		return errs.Store("mark task failed", err)
	}
	t.Status = types.TaskFailed
	t.CompletionTime = &now
	t.ErrorMessage = &msg
	metrics.TasksFailed.Inc()

	idx, ok := g.IndexOf(t.Name)
	if !ok {
		return nil
	}
	for _, label := range g.TerminateDependents(idx) {
		if err := e.store.UpdateTaskRunByLabel(ctx, label, func(stored *types.TaskRun) error {
			stored.Status = types.TaskTerminated
			return nil
		}); err != nil {
			klog.Warningf("mark dependent %s terminated: %v", label, err)
		}
	}
	return nil
}

// transitionTask persists a status transition and, on success, applies
// it to the in-memory TaskRun shared with the DAG node.
func (e *Executor) transitionTask(ctx context.Context, t *types.TaskRun, next types.TaskStatus, extra func(*types.TaskRun)) error {
	if err := e.store.UpdateTaskRunByLabel(ctx, t.Label, func(stored *types.TaskRun) error {
		if extra != nil {
			extra(stored)
		}
		return stored.Transition(next)
	}); err != nil {
		return errs.Store(fmt.Sprintf("transition task to %s", next), err)
	}
	t.Status = next
	return nil
}

// maybeFinalize implements spec §4.6 point 6 and I4's DONE/FAILED
// branches. The TERMINATED branch is handled by cancelStep, since it is
// only ever reached through an explicit cancellation request.
func (e *Executor) maybeFinalize(ctx context.Context, label string, g *dag.Graph) (bool, error) {
	var waiting, building, executing, failed int
	for _, n := range g.Nodes {
		switch n.Task.Status {
		case types.TaskWaiting:
			waiting++
		case types.TaskBuilding:
			building++
		case types.TaskExecuting:
			executing++
		case types.TaskFailed:
			failed++
		}
	}
	if waiting > 0 || building > 0 || executing > 0 {
		return false, nil
	}

	pr, err := e.store.FetchPipelineRunByLabel(ctx, label)
	if err != nil {
		return false, errs.Store("fetch pipeline run for finalize", err)
	}

	now := timeNow()
	pr.CompletionTime = &now
	if failed > 0 {
		pr.Status = types.PipelineFailed
		msg := fmt.Sprintf("%d task(s) failed", failed)
		pr.ErrorMessage = &msg
	} else {
		pr.Status = types.PipelineDone
	}

	if err := e.store.UpdatePipelineRun(ctx, pr); err != nil {
		return false, errs.Store("finalize pipeline run", err)
	}
	if pr.Status == types.PipelineDone {
		metrics.PipelinesCompleted.Inc()
	} else {
		metrics.PipelinesFailed.Inc()
	}
	return true, nil
}

// cancelStep implements spec §4.6 point 7 and §5 Cancellation: delete
// every EXECUTING task's cluster workload, mark every non-terminal task
// TERMINATED, and finalize the PipelineRun. Cleanup is best-effort
// (§7 CleanupError): a delete failure is logged but TERMINATED is still
// entered.
func (e *Executor) cancelStep(ctx context.Context, label string, g *dag.Graph) (bool, error) {
	for _, n := range g.Nodes {
		t := n.Task
		if t.Status != types.TaskExecuting {
			continue
		}
		handler, err := e.registry.Resolve(t.Resource)
		if err != nil {
			continue
		}
		if err := handler.Delete(ctx, t, handlers.DeleteAndReclaim); err != nil {
			klog.Warningf("%v", errs.Cleanup(t.Label, err))
		}
	}

	for _, n := range g.Nodes {
		if n.Task.Status.IsTerminal() {
			continue
		}
		if err := e.store.UpdateTaskRunByLabel(ctx, n.Task.Label, func(stored *types.TaskRun) error {
			stored.Status = types.TaskTerminated
			return nil
		}); err != nil {
			return false, errs.Store("mark task terminated", err)
		}
		n.Task.Status = types.TaskTerminated
	}

	pr, err := e.store.FetchPipelineRunByLabel(ctx, label)
	if err != nil {
		return false, errs.Store("fetch pipeline run for cancel", err)
	}
	now := timeNow()
	pr.Status = types.PipelineTerminated
	pr.CompletionTime = &now
	if err := e.store.UpdatePipelineRun(ctx, pr); err != nil {
		return false, errs.Store("finalize terminated pipeline run", err)
	}
	metrics.PipelinesTerminated.Inc()
	return true, nil
}

func timeNow() time.Time { return time.Now() }

func rebuildGraph(parentLabel string, tasks []*types.TaskRun) *dag.Graph {
	defs := make([]*types.TaskDefinition, len(tasks))
	for i, t := range tasks {
		defs[i] = &types.TaskDefinition{
			Name:       t.Name,
			Image:      t.Image,
			Command:    t.Command,
			Args:       t.Args,
			Mounts:     t.Mounts,
			Secrets:    t.Secrets,
			ConfigMaps: t.ConfigMaps,
			ResourceType: t.Resource,
			NodeSelector: t.NodeSelector,
			PullPolicy: t.PullPolicy,
			NumGPUs:    t.NumGPUs,
			NumWorkers: t.NumWorkers,
			Env:        t.Env,
			RetryLimit: t.RetryLimit,
			Depends:    t.Depends,
		}
	}
	graph, _ := dag.Build(parentLabel, defs)
	// restore persisted status/resource_id onto the freshly-built nodes,
	// and release the successors of every task that already finished
	for i, n := range graph.Nodes {
		n.Task = tasks[i]
		if n.Task.Status == types.TaskExecuted {
			graph.Advance(i)
		}
	}
	return graph
}
