// Package types holds the wire and in-memory data model shared by the
// template expander, DAG builder, executor and jobs store.
package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ResourceKind tags the cluster resource a TaskDefinition submits as.
type ResourceKind string

const (
	ResourcePod         ResourceKind = "POD"
	ResourceBatchJob     ResourceKind = "BATCH_JOB"
	ResourceTFJob        ResourceKind = "TF_JOB"
	ResourcePyTorchJob   ResourceKind = "PYTORCH_JOB"
	ResourceElasticJob   ResourceKind = "ELASTIC_JOB"
	ResourceMPIJob       ResourceKind = "MPI_JOB"
)

// multiWorkerKinds submit a replica-set shaped spec rather than a single
// container or a retrying batch job.
var multiWorkerKinds = map[ResourceKind]bool{
	ResourceTFJob:      true,
	ResourcePyTorchJob: true,
	ResourceElasticJob: true,
	ResourceMPIJob:     true,
}

func (k ResourceKind) IsMultiWorker() bool {
	return multiWorkerKinds[k]
}

func (k ResourceKind) Validate() error {
	switch k {
	case ResourcePod, ResourceBatchJob, ResourceTFJob, ResourcePyTorchJob, ResourceElasticJob, ResourceMPIJob:
		return nil
	default:
		return fmt.Errorf("unsupported resource_type: %s", k)
	}
}

// VolumeMount is a single claim/mount-path pair attached to a task.
type VolumeMount struct {
	Claim string `yaml:"claim" json:"claim" validate:"required"`
	Name  string `yaml:"name" json:"name" validate:"required"`
	Path  string `yaml:"path" json:"path" validate:"required"`
}

// TaskDefinition is a declarative, pre-expansion pipeline step.
type TaskDefinition struct {
	Name         string            `yaml:"name" json:"name" validate:"required"`
	Image        string            `yaml:"image" json:"image" validate:"required"`
	Command      []string          `yaml:"command" json:"command"`
	Args         []string          `yaml:"args" json:"args"`
	Mounts       []VolumeMount     `yaml:"mounts" json:"mounts"`
	Secrets      []string          `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	ConfigMaps   []string          `yaml:"config_maps,omitempty" json:"config_maps,omitempty"`
	ResourceType ResourceKind      `yaml:"resource_type,omitempty" json:"resource_type,omitempty"`
	NodeSelector map[string]string `yaml:"node_selector,omitempty" json:"node_selector,omitempty"`
	PullPolicy   string            `yaml:"pull_policy,omitempty" json:"pull_policy,omitempty"`
	NumGPUs      *int              `yaml:"num_gpus,omitempty" json:"num_gpus,omitempty" validate:"omitempty,gte=0"`
	NumWorkers   *int              `yaml:"num_workers,omitempty" json:"num_workers,omitempty" validate:"omitempty,gte=1"`
	Inputs       []string          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs      []string          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Depends      string            `yaml:"depends,omitempty" json:"depends,omitempty"`

	// Env and RetryLimit supplement the distilled descriptor (SPEC_FULL §3).
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	RetryLimit *int              `yaml:"retry_limit,omitempty" json:"retry_limit,omitempty" validate:"omitempty,gte=0"`
}

// Kind returns the effective resource kind, defaulting to POD.
func (t *TaskDefinition) Kind() ResourceKind {
	if t.ResourceType == "" {
		return ResourcePod
	}
	return t.ResourceType
}

// Validate runs struct-tag validation plus the cross-field checks a tag
// cannot express, composing with the validate.Validate entrypoint the
// rest of the tree uses (validate/validate.go).
func (t *TaskDefinition) Validate() error {
	if err := structValidator.Struct(t); err != nil {
		return fmt.Errorf("task %q: %w", t.Name, err)
	}
	if err := t.Kind().Validate(); err != nil {
		return fmt.Errorf("task %q: %w", t.Name, err)
	}
	if t.Kind().IsMultiWorker() && (t.NumWorkers == nil || *t.NumWorkers < 1) {
		return fmt.Errorf("task %q: %s requires num_workers >= 1", t.Name, t.Kind())
	}
	return nil
}

// PipelineDefinition is the immutable, as-loaded descriptor for one
// pipeline directory.
type PipelineDefinition struct {
	Name  string            `yaml:"name" json:"name" validate:"required"`
	Tasks []*TaskDefinition `yaml:"tasks" json:"tasks" validate:"required,min=1,dive"`

	// WorkPath is the directory the descriptor was loaded from; not part
	// of the wire format, filled in by the loader for ${WORK_PATH}.
	WorkPath string `yaml:"-" json:"-"`
}

func (p *PipelineDefinition) Validate() error {
	if err := structValidator.Struct(p); err != nil {
		return fmt.Errorf("pipeline %q: %w", p.Name, err)
	}
	seen := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.Name] {
			return fmt.Errorf("pipeline %q: duplicate task name %q", p.Name, t.Name)
		}
		seen[t.Name] = true
		if err := t.Validate(); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}
	for _, t := range p.Tasks {
		if t.Depends != "" && !seen[t.Depends] {
			return fmt.Errorf("pipeline %q: task %q depends on unknown task %q", p.Name, t.Name, t.Depends)
		}
	}
	return nil
}

var structValidator = validator.New()
