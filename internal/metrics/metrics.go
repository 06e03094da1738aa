// Package metrics exposes Prometheus counters for pipeline and task
// lifecycle transitions, grounded on jordigilh-kubernaut's
// pkg/metrics package (same promauto registration idiom, same
// NewServer/StartAsync/Stop shape for the /metrics endpoint). Carried
// even though spec.md's Non-goals exclude "hosting an
// experiment-metrics service" — that excludes a user-facing ML-metrics
// product, not internal operational instrumentation (SPEC_FULL §2).
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

var (
	PipelinesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_pipelines_submitted_total",
		Help: "PipelineRuns submitted to the executor.",
	})
	PipelinesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_pipelines_done_total",
		Help: "PipelineRuns that reached DONE.",
	})
	PipelinesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_pipelines_failed_total",
		Help: "PipelineRuns that reached FAILED.",
	})
	PipelinesTerminated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_pipelines_terminated_total",
		Help: "PipelineRuns that reached TERMINATED via cancellation.",
	})

	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_tasks_submitted_total",
		Help: "TaskRuns successfully submitted to a Handler.",
	})
	TasksExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_tasks_executed_total",
		Help: "TaskRuns observed reaching EXECUTED.",
	})
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odinscheduler_tasks_failed_total",
		Help: "TaskRuns that reached FAILED, by any cause.",
	})

	ControlRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odinscheduler_control_requests_total",
		Help: "Control Surface requests handled, by verb.",
	}, []string{"op"})
)

// Server serves the /metrics endpoint, grounded on jordigilh-kubernaut's
// pkg/metrics.Server (NewServer/StartAsync/Stop over http.Server).
type Server struct {
	server *http.Server
}

func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{server: &http.Server{Addr: addr, Handler: mux}}
}

// StartAsync runs the metrics HTTP server in the background, logging
// (rather than panicking) on any error other than a clean shutdown.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("metrics server: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
