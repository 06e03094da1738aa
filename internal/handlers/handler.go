// Package handlers implements the per-resource-kind Handlers of spec
// §4.4 and their Registry (§4.5). Each Handler owns the shape of the
// workload it submits; the Executor only ever calls through the uniform
// Handler interface, never client-go directly.
package handlers

import (
	"context"
	"time"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// Event mirrors the cluster event shape Handlers surface for
// EVENTS <task_label> (spec §4.7), trimmed to what a caller needs.
type Event struct {
	Reason    string
	Message   string
	Type      string
	Timestamp time.Time
}

// DeleteMode chooses whether a Handler's delete call leaves backing
// pods running (spec §4.4 "mode chooses whether backing pods survive").
type DeleteMode int

const (
	DeleteAndReclaim DeleteMode = iota
	DeleteKeepPods
)

// Handler is the capability set spec §4.4 requires of every resource
// kind: submit, status, events, logs, delete. Modeled as an interface
// over a tagged variant (spec §9 Design Notes) rather than dispatch on
// classes.
type Handler interface {
	Kind() types.ResourceKind
	Submit(ctx context.Context, t *types.TaskRun) (resourceID string, err error)
	Status(ctx context.Context, t *types.TaskRun) (types.TaskStatus, error)
	Events(ctx context.Context, t *types.TaskRun) ([]Event, error)
	Logs(ctx context.Context, t *types.TaskRun, follow bool, out chan<- cluster.LogLine) error
	Delete(ctx context.Context, t *types.TaskRun, mode DeleteMode) error
}

// ImagePullBackoffDeadline bounds how long an ImagePullBackOff is
// treated as transient before the status mapping escalates it to
// FAILED (spec §4.4).
const ImagePullBackoffDeadline = 5 * time.Minute
