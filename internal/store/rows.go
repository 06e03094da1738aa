package store

import (
	"encoding/json"
	"time"

	"github.com/linlanniao/odinscheduler/internal/types"
)

// pipelineRunRow/taskRunRow mirror the SQL schema (migrations/00001_init.sql
// and 00002_task_spec.sql) for sqlx struct scanning; the derived slice
// fields on types.PipelineRun (waiting/executing/executed/errored) are
// not persisted: the Control Surface's STATUS answer recomputes them from
// task_runs (control/server.go aggregatedStatus).
type pipelineRunRow struct {
	Label          string          `db:"label"`
	Job            string          `db:"job"`
	Version        *string         `db:"version"`
	Parent         *string         `db:"parent"`
	Status         string          `db:"status"`
	SubmitTime     time.Time       `db:"submit_time"`
	CompletionTime *time.Time      `db:"completion_time"`
	ErrorMessage   *string         `db:"error_message"`
	Children       json.RawMessage `db:"children"`
	Labels         json.RawMessage `db:"labels"`
}

func (r *pipelineRunRow) toPipelineRun() *types.PipelineRun {
	run := &types.PipelineRun{
		Label:          r.Label,
		Job:            r.Job,
		Version:        r.Version,
		Parent:         r.Parent,
		Status:         types.PipelineStatus(r.Status),
		SubmitTime:     r.SubmitTime,
		CompletionTime: r.CompletionTime,
		ErrorMessage:   r.ErrorMessage,
	}
	_ = json.Unmarshal(r.Children, &run.Children)
	_ = json.Unmarshal(r.Labels, &run.Labels)
	return run
}

type taskRunRow struct {
	Label          string     `db:"label"`
	Parent         string     `db:"parent"`
	Name           string     `db:"name"`
	Image          string     `db:"image"`
	ResourceType   string     `db:"resource_type"`
	ResourceID     *string    `db:"resource_id"`
	Status         string     `db:"status"`
	SubmitTime     *time.Time `db:"submit_time"`
	CompletionTime *time.Time `db:"completion_time"`
	Attempts       int        `db:"attempts"`
	ErrorMessage   *string    `db:"error_message"`

	// Spec carries every TaskRun field that has no column of its own
	// (command/args/mounts/depends/...): see taskSpec below.
	Spec json.RawMessage `db:"spec"`
}

// taskSpec is the JSONB-persisted half of a TaskRun: the declarative
// task descriptor fields that have no dedicated Postgres column.
// Without these, a restart's rebuildGraph (executor.go) would
// reconstruct every TaskDefinition with no Depends and empty
// Command/Args, producing a graph with no dependency edges and tasks
// that submit with an empty command. Persisting the full descriptor
// here is what lets a resumed run converge to the same graph an
// uninterrupted one would have built.
type taskSpec struct {
	Command      []string            `json:"command"`
	Args         []string            `json:"args"`
	Mounts       []types.VolumeMount `json:"mounts"`
	Secrets      []string            `json:"secrets,omitempty"`
	ConfigMaps   []string            `json:"config_maps,omitempty"`
	NodeSelector map[string]string   `json:"node_selector,omitempty"`
	PullPolicy   string              `json:"pull_policy,omitempty"`
	NumGPUs      *int                `json:"num_gpus,omitempty"`
	NumWorkers   *int                `json:"num_workers,omitempty"`
	Env          map[string]string   `json:"env,omitempty"`
	RetryLimit   *int                `json:"retry_limit,omitempty"`
	Depends      string              `json:"depends,omitempty"`
}

func specOf(t *types.TaskRun) taskSpec {
	return taskSpec{
		Command:      t.Command,
		Args:         t.Args,
		Mounts:       t.Mounts,
		Secrets:      t.Secrets,
		ConfigMaps:   t.ConfigMaps,
		NodeSelector: t.NodeSelector,
		PullPolicy:   t.PullPolicy,
		NumGPUs:      t.NumGPUs,
		NumWorkers:   t.NumWorkers,
		Env:          t.Env,
		RetryLimit:   t.RetryLimit,
		Depends:      t.Depends,
	}
}

func (s taskSpec) applyTo(t *types.TaskRun) {
	t.Command = s.Command
	t.Args = s.Args
	t.Mounts = s.Mounts
	t.Secrets = s.Secrets
	t.ConfigMaps = s.ConfigMaps
	t.NodeSelector = s.NodeSelector
	t.PullPolicy = s.PullPolicy
	t.NumGPUs = s.NumGPUs
	t.NumWorkers = s.NumWorkers
	t.Env = s.Env
	t.RetryLimit = s.RetryLimit
	t.Depends = s.Depends
}

func (r *taskRunRow) toTaskRun() *types.TaskRun {
	t := &types.TaskRun{
		Label:          r.Label,
		Parent:         r.Parent,
		Name:           r.Name,
		Image:          r.Image,
		Resource:       types.ResourceKind(r.ResourceType),
		Status:         types.TaskStatus(r.Status),
		SubmitTime:     r.SubmitTime,
		CompletionTime: r.CompletionTime,
		Attempts:       r.Attempts,
		ErrorMessage:   r.ErrorMessage,
	}
	if r.ResourceID != nil {
		t.ResourceID = *r.ResourceID
	}
	var spec taskSpec
	if len(r.Spec) > 0 {
		_ = json.Unmarshal(r.Spec, &spec)
	}
	spec.applyTo(t)
	return t
}
