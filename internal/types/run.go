package types

import (
	"fmt"
	"time"
)

// PipelineStatus is the aggregate status of a PipelineRun (spec §3, I4).
type PipelineStatus string

const (
	PipelineSubmitted PipelineStatus = "SUBMITTED"
	PipelineRunning    PipelineStatus = "RUNNING"
	PipelineDone       PipelineStatus = "DONE"
	PipelineTerminated PipelineStatus = "TERMINATED"
	PipelineFailed     PipelineStatus = "FAILED"
)

// TaskStatus is the per-TaskRun state machine (spec §4.6).
type TaskStatus string

const (
	TaskWaiting    TaskStatus = "WAITING"
	TaskBuilding   TaskStatus = "BUILDING"
	TaskExecuting  TaskStatus = "EXECUTING"
	TaskExecuted   TaskStatus = "EXECUTED"
	TaskFailed     TaskStatus = "FAILED"
	TaskTerminated TaskStatus = "TERMINATED"
)

// IsTerminal reports whether no further transition is allowed (I5).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskExecuted, TaskFailed, TaskTerminated:
		return true
	default:
		return false
	}
}

// TaskLabel builds the label format mandated by I2: parentLabel--taskName.
func TaskLabel(parentLabel, taskName string) string {
	return parentLabel + "--" + taskName
}

// PipelineRun is the durable record of one pipeline execution.
type PipelineRun struct {
	Label          string            `json:"label" db:"label"`
	Job            string            `json:"job" db:"job"`
	Version        *string           `json:"version,omitempty" db:"version"`
	Parent         *string           `json:"parent,omitempty" db:"parent"`
	Waiting        []string          `json:"waiting" db:"-"`
	Executing      []string          `json:"executing" db:"-"`
	Executed       []string          `json:"executed" db:"-"`
	Errored        []string          `json:"errored" db:"-"`
	Status         PipelineStatus    `json:"status" db:"status"`
	SubmitTime     time.Time         `json:"submit_time" db:"submit_time"`
	CompletionTime *time.Time        `json:"completion_time,omitempty" db:"completion_time"`
	ErrorMessage   *string           `json:"error_message,omitempty" db:"error_message"`
	Children       []string          `json:"children" db:"-"`

	// Labels supplements the distilled descriptor (SPEC_FULL §3): operator
	// labels propagated onto every cluster workload this run creates.
	Labels map[string]string `json:"labels,omitempty" db:"-"`
}

// Terminated reports whether cancellation has driven every child task to
// a terminal state (I4, TERMINATED branch).
func (p *PipelineRun) Terminated() bool {
	return p.Status == PipelineTerminated
}

// TaskRun is one step of a PipelineRun, backed by a cluster workload.
type TaskRun struct {
	Label      string            `json:"label" db:"label"`
	Parent     string            `json:"parent" db:"parent"`
	Name       string            `json:"name" db:"name"`
	Command    []string          `json:"command" db:"-"`
	Args       []string          `json:"args" db:"-"`
	Image      string            `json:"image" db:"image"`
	Resource   ResourceKind      `json:"resource_type" db:"resource_type"`
	ResourceID string            `json:"resource_id,omitempty" db:"resource_id"`
	Status     TaskStatus        `json:"status" db:"status"`
	Mounts     []VolumeMount     `json:"mounts" db:"-"`
	Secrets    []string          `json:"secrets,omitempty" db:"-"`
	ConfigMaps []string          `json:"config_maps,omitempty" db:"-"`
	NodeSelector map[string]string `json:"node_selector,omitempty" db:"-"`
	PullPolicy string            `json:"pull_policy,omitempty" db:"-"`
	NumGPUs    *int              `json:"num_gpus,omitempty" db:"-"`
	NumWorkers *int              `json:"num_workers,omitempty" db:"-"`
	Env        map[string]string `json:"env,omitempty" db:"-"`
	RetryLimit *int              `json:"retry_limit,omitempty" db:"-"`
	Depends    string            `json:"depends,omitempty" db:"-"`

	SubmitTime     *time.Time `json:"submit_time,omitempty" db:"submit_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty" db:"completion_time"`
	Attempts       int        `json:"attempts" db:"attempts"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
}

// NewTaskRun builds the WAITING-state TaskRun for a TaskDefinition
// already expanded against a parent PipelineRun.
func NewTaskRun(parentLabel string, def *TaskDefinition) *TaskRun {
	return &TaskRun{
		Label:        TaskLabel(parentLabel, def.Name),
		Parent:       parentLabel,
		Name:         def.Name,
		Command:      def.Command,
		Args:         def.Args,
		Image:        def.Image,
		Resource:     def.Kind(),
		Status:       TaskWaiting,
		Mounts:       def.Mounts,
		Secrets:      def.Secrets,
		ConfigMaps:   def.ConfigMaps,
		NodeSelector: def.NodeSelector,
		PullPolicy:   def.PullPolicy,
		NumGPUs:      def.NumGPUs,
		NumWorkers:   def.NumWorkers,
		Env:          def.Env,
		RetryLimit:   def.RetryLimit,
		Depends:      def.Depends,
	}
}

// Transition applies a TaskStatus change, enforcing I5 (no transition
// out of a terminal state). The individual edges of the §4.6 state
// machine are not checked: any change from a non-terminal state is
// accepted.
func (t *TaskRun) Transition(next TaskStatus) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s: cannot transition out of terminal state %s", t.Label, t.Status)
	}
	t.Status = next
	return nil
}
