package cluster

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
)

// CreatePod creates a Pod, grounded on the teacher's CreatePod.
func (c *Client) CreatePod(ctx context.Context, pod *corev1.Pod) (*corev1.Pod, error) {
	var out *corev1.Pod
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.CoreV1().Pods(c.namespace).Create(ctx, pod, metav1.CreateOptions{})
		return err
	})
	return out, err
}

// GetPod reads a Pod's current state.
func (c *Client) GetPod(ctx context.Context, name string) (*corev1.Pod, error) {
	var out *corev1.Pod
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.CoreV1().Pods(c.namespace).Get(ctx, name, metav1.GetOptions{})
		return err
	})
	return out, err
}

// DeletePod deletes a Pod; a Pod that is already gone counts as
// deleted. It takes no mode: whether to delete at all is decided one
// layer up, in the Handler (spec §4.4 delete(TaskRun, mode)).
func (c *Client) DeletePod(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationForeground
	return c.call(ctx, func(ctx context.Context) error {
		err := c.kube.CoreV1().Pods(c.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
		if k8serrors.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// CreateJob creates a batch Job, grounded on the teacher's CreateJob.
func (c *Client) CreateJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	var out *batchv1.Job
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{})
		return err
	})
	return out, err
}

// GetJob reads a Job's current state.
func (c *Client) GetJob(ctx context.Context, name string) (*batchv1.Job, error) {
	var out *batchv1.Job
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.BatchV1().Jobs(c.namespace).Get(ctx, name, metav1.GetOptions{})
		return err
	})
	return out, err
}

// DeleteJob deletes a Job, orphaning its pods when keepPods is set and
// otherwise deleting them via foreground propagation, then waits (up to
// two minutes) until the Job itself is gone, mirroring the teacher's
// DeleteJob.
func (c *Client) DeleteJob(ctx context.Context, name string, keepPods bool) error {
	policy := metav1.DeletePropagationForeground
	if keepPods {
		policy = metav1.DeletePropagationOrphan
	}
	err := c.call(ctx, func(ctx context.Context) error {
		err := c.kube.BatchV1().Jobs(c.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
		if k8serrors.IsNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return wait.PollUntilContextTimeout(ctx, 2*time.Second, 2*time.Minute, true, func(ctx context.Context) (bool, error) {
		_, err := c.kube.BatchV1().Jobs(c.namespace).Get(ctx, name, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return false, nil
	})
}

// PodsForJob lists the pods owned by a Job, grounded on GetPodsFromJob.
func (c *Client) PodsForJob(ctx context.Context, jobName string) (*corev1.PodList, error) {
	var out *corev1.PodList
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
			LabelSelector: labels.Set{"job-name": jobName}.AsSelector().String(),
		})
		return err
	})
	if err == nil && len(out.Items) == 0 {
		return nil, fmt.Errorf("no pods found for job %s", jobName)
	}
	return out, err
}

// CreateConfigMap creates a ConfigMap, grounded on the teacher's
// CreateConfigMap.
func (c *Client) CreateConfigMap(ctx context.Context, cm *corev1.ConfigMap) (*corev1.ConfigMap, error) {
	var out *corev1.ConfigMap
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.CoreV1().ConfigMaps(c.namespace).Create(ctx, cm, metav1.CreateOptions{})
		return err
	})
	return out, err
}

// DeleteConfigMap deletes a ConfigMap, grounded on the teacher's
// DeleteConfigMap.
func (c *Client) DeleteConfigMap(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationForeground
	return c.call(ctx, func(ctx context.Context) error {
		err := c.kube.CoreV1().ConfigMaps(c.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
		if k8serrors.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// Events lists the events targeting the given involved-object name,
// grounded on the teacher's controller/podhandler.go event-watching use
// of the core client (spec §4.4 events(TaskRun)).
func (c *Client) Events(ctx context.Context, involvedObjectName string) ([]corev1.Event, error) {
	var out *corev1.EventList
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.kube.CoreV1().Events(c.namespace).List(ctx, metav1.ListOptions{
			FieldSelector: "involvedObject.name=" + involvedObjectName,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}
