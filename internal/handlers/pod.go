package handlers

import (
	"context"
	"fmt"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/handlers/builders"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// PodHandler submits a single-container pod, grounded on the teacher's
// controller.PodHandler (controller/podhandler.go) generalized from a
// fixed controller callback pair into the uniform Handler interface.
type PodHandler struct {
	cc *cluster.Client
}

func NewPodHandler(cc *cluster.Client) *PodHandler { return &PodHandler{cc: cc} }

func (h *PodHandler) Kind() types.ResourceKind { return types.ResourcePod }

func (h *PodHandler) Submit(ctx context.Context, t *types.TaskRun) (string, error) {
	pod := builders.Pod(t)
	created, err := h.cc.CreatePod(ctx, pod)
	if err != nil {
		return "", fmt.Errorf("pod submit: %w", err)
	}
	return created.Name, nil
}

func (h *PodHandler) Status(ctx context.Context, t *types.TaskRun) (types.TaskStatus, error) {
	pod, err := h.cc.GetPod(ctx, t.ResourceID)
	if err != nil {
		return "", err
	}
	return mapPodStatus(pod), nil
}

func (h *PodHandler) Events(ctx context.Context, t *types.TaskRun) ([]Event, error) {
	raw, err := h.cc.Events(ctx, t.ResourceID)
	if err != nil {
		return nil, err
	}
	return convertEvents(raw), nil
}

func (h *PodHandler) Logs(ctx context.Context, t *types.TaskRun, follow bool, out chan<- cluster.LogLine) error {
	return h.cc.StreamLogs(ctx, t.ResourceID, follow, out)
}

func (h *PodHandler) Delete(ctx context.Context, t *types.TaskRun, mode DeleteMode) error {
	if mode == DeleteKeepPods {
		return nil
	}
	return h.cc.DeletePod(ctx, t.ResourceID)
}
