package handlers

import (
	"context"
	"fmt"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/handlers/builders"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// BatchJobHandler submits a Job that retries to completion, grounded on
// the teacher's kbatch/alpha/v2 Task.GenerateJob/builders.JobBuilder
// path, generalized to run the TaskRun's own image/command rather than
// a ConfigMap-mounted script.
type BatchJobHandler struct {
	cc *cluster.Client
}

func NewBatchJobHandler(cc *cluster.Client) *BatchJobHandler { return &BatchJobHandler{cc: cc} }

func (h *BatchJobHandler) Kind() types.ResourceKind { return types.ResourceBatchJob }

func (h *BatchJobHandler) Submit(ctx context.Context, t *types.TaskRun) (string, error) {
	job := builders.Job(t)
	created, err := h.cc.CreateJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("job submit: %w", err)
	}
	return created.Name, nil
}

func (h *BatchJobHandler) Status(ctx context.Context, t *types.TaskRun) (types.TaskStatus, error) {
	job, err := h.cc.GetJob(ctx, t.ResourceID)
	if err != nil {
		return "", err
	}
	status := mapJobStatus(job)
	if status != types.TaskWaiting {
		return status, nil
	}
	// A Job can sit at zero active/succeeded/failed while its pod is
	// stuck in ImagePullBackOff; consult the pod directly for that case
	// (spec §4.4 ImagePullBackOff deadline, S6).
	pods, err := h.cc.PodsForJob(ctx, t.ResourceID)
	if err != nil || len(pods.Items) == 0 {
		return status, nil
	}
	return mapPodStatus(&pods.Items[0]), nil
}

func (h *BatchJobHandler) Events(ctx context.Context, t *types.TaskRun) ([]Event, error) {
	raw, err := h.cc.Events(ctx, t.ResourceID)
	if err != nil {
		return nil, err
	}
	return convertEvents(raw), nil
}

func (h *BatchJobHandler) Logs(ctx context.Context, t *types.TaskRun, follow bool, out chan<- cluster.LogLine) error {
	pods, err := h.cc.PodsForJob(ctx, t.ResourceID)
	if err != nil {
		close(out)
		return err
	}
	return h.cc.StreamLogs(ctx, pods.Items[0].Name, follow, out)
}

func (h *BatchJobHandler) Delete(ctx context.Context, t *types.TaskRun, mode DeleteMode) error {
	return h.cc.DeleteJob(ctx, t.ResourceID, mode == DeleteKeepPods)
}
