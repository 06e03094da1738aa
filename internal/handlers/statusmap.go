package handlers

import (
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/linlanniao/odinscheduler/internal/types"
)

// mapPodStatus applies the uniform status-mapping rules of spec §4.4 to
// a Pod's phase and container statuses, treating an ImagePullBackOff
// that has persisted past ImagePullBackoffDeadline as terminal FAILED
// rather than transient (spec §4.4, S6).
func mapPodStatus(pod *corev1.Pod) types.TaskStatus {
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return types.TaskExecuted
	case corev1.PodFailed:
		return types.TaskFailed
	case corev1.PodPending:
		if backoffExpired(pod) {
			return types.TaskFailed
		}
		return types.TaskWaiting
	case corev1.PodRunning:
		return types.TaskExecuting
	default:
		return types.TaskWaiting
	}
}

func backoffExpired(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		waiting := cs.State.Waiting
		if waiting == nil || waiting.Reason != "ImagePullBackOff" {
			continue
		}
		if pod.Status.StartTime != nil && time.Since(pod.Status.StartTime.Time) > ImagePullBackoffDeadline {
			return true
		}
		if pod.CreationTimestamp.Time.IsZero() {
			continue
		}
		if time.Since(pod.CreationTimestamp.Time) > ImagePullBackoffDeadline {
			return true
		}
	}
	return false
}

// mapJobStatus applies the same rules to a batchv1.Job (BATCH_JOB and
// the multi-worker kinds all submit a Job). Terminal status comes from
// the Job's Complete/Failed condition, so a failed pod the Job
// controller is still retrying does not end the task early; otherwise
// any active pod means EXECUTING.
func mapJobStatus(job *batchv1.Job) types.TaskStatus {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			return types.TaskExecuted
		case batchv1.JobFailed:
			return types.TaskFailed
		}
	}
	if job.Status.Active > 0 {
		return types.TaskExecuting
	}
	return types.TaskWaiting
}
