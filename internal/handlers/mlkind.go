package handlers

import (
	"context"
	"fmt"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/handlers/builders"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// MultiWorkerHandler backs TF_JOB, PYTORCH_JOB, ELASTIC_JOB and
// MPI_JOB: spec §4.4 describes them as submitting "the corresponding
// custom-resource spec carrying num_workers, per-worker image and
// command, and a shared volume mount", mapping native status/phase into
// the uniform vocabulary. Lacking a CRD client anywhere in the
// retrieved pack (no controller-runtime, no generated clientset for any
// training-operator CRD), this is expressed as an indexed-completion
// batchv1.Job with num_workers replicas — every worker gets its ordinal
// via the built-in JOB_COMPLETION_INDEX env var, which is the native
// Kubernetes mechanism for exactly this shape. All four kinds share one
// handler since the Job shape is identical; only the kind tag differs.
type MultiWorkerHandler struct {
	kind types.ResourceKind
	cc   *cluster.Client
}

func NewMultiWorkerHandler(kind types.ResourceKind, cc *cluster.Client) *MultiWorkerHandler {
	return &MultiWorkerHandler{kind: kind, cc: cc}
}

func (h *MultiWorkerHandler) Kind() types.ResourceKind { return h.kind }

func (h *MultiWorkerHandler) Submit(ctx context.Context, t *types.TaskRun) (string, error) {
	job := builders.MultiWorkerJob(t)
	created, err := h.cc.CreateJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("%s submit: %w", h.kind, err)
	}
	return created.Name, nil
}

func (h *MultiWorkerHandler) Status(ctx context.Context, t *types.TaskRun) (types.TaskStatus, error) {
	job, err := h.cc.GetJob(ctx, t.ResourceID)
	if err != nil {
		return "", err
	}
	return mapJobStatus(job), nil
}

func (h *MultiWorkerHandler) Events(ctx context.Context, t *types.TaskRun) ([]Event, error) {
	raw, err := h.cc.Events(ctx, t.ResourceID)
	if err != nil {
		return nil, err
	}
	return convertEvents(raw), nil
}

func (h *MultiWorkerHandler) Logs(ctx context.Context, t *types.TaskRun, follow bool, out chan<- cluster.LogLine) error {
	pods, err := h.cc.PodsForJob(ctx, t.ResourceID)
	if err != nil {
		close(out)
		return err
	}
	return h.cc.StreamLogs(ctx, pods.Items[0].Name, follow, out)
}

func (h *MultiWorkerHandler) Delete(ctx context.Context, t *types.TaskRun, mode DeleteMode) error {
	return h.cc.DeleteJob(ctx, t.ResourceID, mode == DeleteKeepPods)
}
