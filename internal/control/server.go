package control

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/handlers"
	"github.com/linlanniao/odinscheduler/internal/metrics"
	"github.com/linlanniao/odinscheduler/internal/store"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// PipelineSubmitter is the slice of the Executor the Control Surface
// needs: submit a new run, cancel an existing one.
type PipelineSubmitter interface {
	Submit(ctx context.Context, pipelineName string) (string, error)
	Cancel(label string) error
}

// Server answers the Control Surface operations of spec §4.7 over a
// persistent, message-framed websocket connection. One connection per
// client; concurrent connections are independent (spec §5 "connection-
// per-request fan-out").
type Server struct {
	exec     PipelineSubmitter
	store    store.Store
	registry *handlers.Registry
	dataRoot string

	upgrader websocket.Upgrader
	server   *http.Server
}

func NewServer(addr string, exec PipelineSubmitter, st store.Store, registry *handlers.Registry, dataRoot string) *Server {
	s := &Server{
		exec:     exec,
		store:    st,
		registry: registry,
		dataRoot: dataRoot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The control protocol has no browser client; any origin is
			// the trusted caller this process was configured to serve.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConn)
	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks serving the Control Surface until ctx is
// canceled, then shuts the listener down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Warningf("control surface: upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				klog.V(4).Infof("control surface: connection closed: %v", err)
			}
			return
		}
		metrics.ControlRequests.WithLabelValues(req.Op).Inc()
		resp := s.dispatch(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			klog.Warningf("control surface: write: %v", err)
			return
		}
	}
}

// dispatch implements the verb table of spec §4.7. Every branch is
// self-contained: requests are independent, per §5.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Op {
	case "PING":
		return ok("PONG")
	case "RUN":
		return s.run(ctx, req)
	case "STATUS":
		return s.status(ctx, req)
	case "DATA":
		return s.data(ctx, req)
	case "LOGS":
		return s.logs(ctx, req)
	case "EVENTS":
		return s.events(ctx, req)
	case "CLEANUP":
		return s.cleanup(ctx, req)
	case "SHOW":
		return s.show(ctx, req)
	default:
		return fail("unknown op %q", req.Op)
	}
}

func (s *Server) run(ctx context.Context, req Request) Response {
	if req.Pipeline == "" {
		return fail("RUN requires a pipeline name")
	}
	label, err := s.exec.Submit(ctx, req.Pipeline)
	if err != nil {
		return fail("%v", err)
	}
	return ok(map[string]string{"label": label})
}

// isTaskLabel recognizes a TaskRun label by the "--" separator I2
// mandates between a parent PipelineRun label and the task name.
func isTaskLabel(label string) bool {
	return strings.Contains(label, "--")
}

func (s *Server) status(ctx context.Context, req Request) Response {
	if req.Label == "" {
		return fail("STATUS requires a label")
	}
	if isTaskLabel(req.Label) {
		t, err := s.store.FetchTaskRunByLabel(ctx, req.Label)
		if err != nil {
			return fail("%v", err)
		}
		return ok(map[string]any{"label": t.Label, "status": t.Status})
	}
	pr, err := s.store.FetchPipelineRunByLabel(ctx, req.Label)
	if err != nil {
		return fail("%v", err)
	}
	return s.aggregatedStatus(ctx, pr)
}

// aggregatedStatus recomputes waiting/executing/executed/errored per
// I4 directly from the PipelineRun's TaskRuns, rather than trusting a
// possibly-stale derived field.
func (s *Server) aggregatedStatus(ctx context.Context, pr *types.PipelineRun) Response {
	tasks, err := s.store.TaskRunsForPipeline(ctx, pr.Label)
	if err != nil {
		return fail("%v", err)
	}
	var waiting, executing, executed, errored []string
	for _, t := range tasks {
		switch t.Status {
		case types.TaskWaiting, types.TaskBuilding:
			waiting = append(waiting, t.Label)
		case types.TaskExecuting:
			executing = append(executing, t.Label)
		case types.TaskExecuted:
			executed = append(executed, t.Label)
		case types.TaskFailed, types.TaskTerminated:
			errored = append(errored, t.Label)
		}
	}
	return ok(map[string]any{
		"label":     pr.Label,
		"status":    pr.Status,
		"waiting":   waiting,
		"executing": executing,
		"executed":  executed,
		"errored":   errored,
	})
}

func (s *Server) data(ctx context.Context, req Request) Response {
	if req.Label == "" {
		return fail("DATA requires a label")
	}
	if isTaskLabel(req.Label) {
		t, err := s.store.FetchTaskRunByLabel(ctx, req.Label)
		if err != nil {
			return fail("%v", err)
		}
		return ok(t)
	}
	pr, err := s.store.FetchPipelineRunByLabel(ctx, req.Label)
	if err != nil {
		return fail("%v", err)
	}
	return ok(pr)
}

func (s *Server) resolveHandler(ctx context.Context, taskLabel string) (handlers.Handler, *types.TaskRun, error) {
	t, err := s.store.FetchTaskRunByLabel(ctx, taskLabel)
	if err != nil {
		return nil, nil, err
	}
	h, err := s.registry.Resolve(t.Resource)
	if err != nil {
		return nil, nil, err
	}
	return h, t, nil
}

func (s *Server) logs(ctx context.Context, req Request) Response {
	if req.TaskLabel == "" {
		return fail("LOGS requires a task_label")
	}
	h, t, err := s.resolveHandler(ctx, req.TaskLabel)
	if err != nil {
		return fail("%v", err)
	}
	lines := make(chan cluster.LogLine, 256)
	var collected []string
	done := make(chan error, 1)
	go func() {
		done <- h.Logs(ctx, t, req.Follow, lines)
	}()
	for line := range lines {
		collected = append(collected, line.Line)
	}
	if err := <-done; err != nil {
		return fail("%v", err)
	}
	return ok(map[string]any{"label": req.TaskLabel, "lines": collected})
}

func (s *Server) events(ctx context.Context, req Request) Response {
	if req.TaskLabel == "" {
		return fail("EVENTS requires a task_label")
	}
	h, t, err := s.resolveHandler(ctx, req.TaskLabel)
	if err != nil {
		return fail("%v", err)
	}
	events, err := h.Events(ctx, t)
	if err != nil {
		return fail("%v", err)
	}
	return ok(events)
}

// cleanup implements spec §4.7 CLEANUP and §6 "db and fs toggle,
// respectively, purging the store record and removing the task's
// on-disk workspace under ${RUN_PATH}". Cancellation is always
// attempted first so a running PipelineRun never gets its store record
// deleted out from under an active reconciliation loop.
func (s *Server) cleanup(ctx context.Context, req Request) Response {
	if req.Label == "" {
		return fail("CLEANUP requires a label")
	}
	if err := s.exec.Cancel(req.Label); err != nil && !errors.Is(err, errs.ErrCancelRequested) {
		return fail("%v", err)
	}

	if req.FS {
		runPath := filepath.Join(s.dataRoot, req.Label)
		if err := os.RemoveAll(runPath); err != nil {
			klog.Warningf("%v", errs.Cleanup(req.Label, err))
		}
	}
	if req.DB {
		if err := s.store.DeleteTaskRunsForPipeline(ctx, req.Label); err != nil {
			klog.Warningf("%v", errs.Cleanup(req.Label, err))
		}
		if err := s.store.DeletePipelineRun(ctx, req.Label); err != nil {
			return fail("%v", err)
		}
	}
	return ok(map[string]string{"label": req.Label})
}

func (s *Server) show(ctx context.Context, req Request) Response {
	runs, err := s.store.SearchPipelineRuns(ctx, req.Query)
	if err != nil {
		return fail("%v", err)
	}
	return ok(runs)
}
