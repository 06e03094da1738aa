// Package builders constructs the corev1/batchv1 specs Resource
// Handlers submit. Generalized from the teacher's
// kbatch/alpha/v2/builders.JobBuilder fluent pattern: where the teacher
// built a single nsenter-or-normal container running a ConfigMap-mounted
// script, this builder runs the TaskRun's own image/command/args
// directly and wires in PVC claims, external ConfigMaps and Secrets
// declared on the TaskDefinition (spec §3) instead of a script volume.
package builders

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/linlanniao/odinscheduler/internal/types"
)

const (
	ContainerName = "task"

	requestCPU    = "100m"
	requestMemory = "100Mi"
)

// PodSpec builds the corev1.PodSpec shared by every resource kind:
// the runner container plus its volumes, mirroring the teacher's
// jobBuilder.initJob container/volume wiring but driven off a TaskRun
// instead of a script ConfigMap.
func PodSpec(t *types.TaskRun) corev1.PodSpec {
	container := corev1.Container{
		Name:            ContainerName,
		Image:           t.Image,
		Command:         t.Command,
		Args:            t.Args,
		ImagePullPolicy: pullPolicy(t.PullPolicy),
	}

	for name, value := range t.Env {
		container.Env = append(container.Env, corev1.EnvVar{Name: name, Value: value})
	}

	for _, secret := range t.Secrets {
		container.EnvFrom = append(container.EnvFrom, corev1.EnvFromSource{
			SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: secret}},
		})
	}

	var volumes []corev1.Volume
	for _, m := range t.Mounts {
		volumes = append(volumes, corev1.Volume{
			Name: m.Name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: m.Claim},
			},
		})
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{Name: m.Name, MountPath: m.Path})
	}

	for _, cmName := range t.ConfigMaps {
		volName := "cm-" + cmName
		volumes = append(volumes, corev1.Volume{
			Name: volName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: cmName}},
			},
		})
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name:      volName,
			MountPath: "/configmaps/" + cmName,
			ReadOnly:  true,
		})
	}

	container.Resources = corev1.ResourceRequirements{
		Requests: baseRequests(),
		Limits:   requestResources(t.NumGPUs),
	}

	return corev1.PodSpec{
		Containers:    []corev1.Container{container},
		RestartPolicy: corev1.RestartPolicyNever,
		NodeSelector:  t.NodeSelector,
		Affinity:      RequiredAffinity(t.NumGPUs),
		Volumes:       volumes,
	}
}

func baseRequests() corev1.ResourceList {
	return corev1.ResourceList{
		corev1.ResourceCPU:    resource.MustParse(requestCPU),
		corev1.ResourceMemory: resource.MustParse(requestMemory),
	}
}

func pullPolicy(p string) corev1.PullPolicy {
	if p == "" {
		return corev1.PullIfNotPresent
	}
	return corev1.PullPolicy(p)
}

// ObjectMeta builds the metadata every workload carries: name equal to
// the TaskRun's label (spec §6 "resource_id equals the TaskRun label by
// construction") and the uniform task-name label, mirroring the
// teacher's TaskNameLabelKey convention (kbatch/alpha/v2/task.go).
func ObjectMeta(t *types.TaskRun, extraLabels map[string]string) metav1.ObjectMeta {
	labels := map[string]string{TaskNameLabelKey: t.Name, PipelineLabelKey: t.Parent}
	for k, v := range extraLabels {
		labels[k] = v
	}
	return metav1.ObjectMeta{
		Name:   t.Label,
		Labels: labels,
	}
}

const (
	TaskNameLabelKey = "odinscheduler.io/task"
	PipelineLabelKey = "odinscheduler.io/pipeline-run"
)

func requestResources(gpus *int) corev1.ResourceList {
	rl := corev1.ResourceList{}
	if gpus != nil && *gpus > 0 {
		rl[corev1.ResourceName("nvidia.com/gpu")] = resource.MustParse(fmt.Sprintf("%d", *gpus))
	}
	return rl
}
