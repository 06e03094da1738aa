package builders

import (
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/linlanniao/odinscheduler/internal/types"
)

var (
	jobBackoffLimit               int32 = 0
	jobTTLSecondsAfterFinished    int32 = 600
	jobDeletionGracePeriodSeconds int64 = 30
)

// Pod builds a bare Pod for the POD resource kind.
func Pod(t *types.TaskRun) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: ObjectMeta(t, nil),
		Spec:       PodSpec(t),
	}
}

// Job builds a batchv1.Job for BATCH_JOB: single worker, retries to
// completion (backoffLimit from the task's retry_limit, defaulting to
// the teacher's own zero-retry default), grounded on the teacher's
// jobBuilder.initJob (kbatch/alpha/v2/builders/jobbuilder.go).
func Job(t *types.TaskRun) *batchv1.Job {
	backoff := jobBackoffLimit
	if t.RetryLimit != nil {
		backoff = int32(*t.RetryLimit)
	}
	one := int32(1)
	job := &batchv1.Job{
		ObjectMeta: ObjectMeta(t, nil),
		Spec: batchv1.JobSpec{
			Parallelism:             &one,
			Completions:             &one,
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &jobTTLSecondsAfterFinished,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: ObjectMeta(t, nil),
				Spec:       PodSpec(t),
			},
		},
	}
	job.SetDeletionGracePeriodSeconds(&jobDeletionGracePeriodSeconds)
	return job
}

// MultiWorkerJob builds the shared-volume, indexed-completion Job the
// TF_JOB/PYTORCH_JOB/ELASTIC_JOB/MPI_JOB kinds submit: num_workers
// replicas of the same container, each seeing its ordinal via the
// built-in JOB_COMPLETION_INDEX env var (spec §4.4: "a shared volume
// mount" plus "per-worker image and command"). This is the
// generalization SPEC_FULL §4.4 calls for of the teacher's single-Job
// builder into a multi-worker custom-resource-shaped spec, expressed
// as a native Kubernetes Job (Indexed completion mode) rather than a
// CRD the pack carries no client for.
func MultiWorkerJob(t *types.TaskRun) *batchv1.Job {
	job := Job(t)
	workers := int32(1)
	if t.NumWorkers != nil {
		workers = int32(*t.NumWorkers)
	}
	job.Spec.Parallelism = &workers
	job.Spec.Completions = &workers
	mode := batchv1.IndexedCompletion
	job.Spec.CompletionMode = &mode
	return job
}
