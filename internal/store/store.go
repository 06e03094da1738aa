// Package store implements the Jobs Store of spec §4.8: a narrow
// key/value-like interface over a relational or document backend, with
// atomic update-by-label so status transitions don't race. Grounded on
// jordigilh-kubernaut's storage stack (pgx/v5, sqlx, goose) for the
// relational backend; the document backend has no library anywhere in
// the retrieved pack to ground a client on (see document.go).
package store

import (
	"context"
	"time"

	"github.com/linlanniao/odinscheduler/internal/types"
)

// Store is the Jobs Store interface every backend implements.
type Store interface {
	CreatePipelineRun(ctx context.Context, run *types.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *types.PipelineRun) error
	FetchPipelineRunByLabel(ctx context.Context, label string) (*types.PipelineRun, error)
	SearchPipelineRuns(ctx context.Context, substring string) ([]*types.PipelineRun, error)
	DeletePipelineRun(ctx context.Context, label string) error
	NonTerminalPipelineRuns(ctx context.Context) ([]*types.PipelineRun, error)

	CreateTaskRun(ctx context.Context, t *types.TaskRun) error
	// UpdateTaskRunByLabel atomically applies mutate to the stored
	// TaskRun, so two observers racing on the same label never produce
	// a lost update (spec §4.8 "atomic update-by-label").
	UpdateTaskRunByLabel(ctx context.Context, label string, mutate func(*types.TaskRun) error) error
	FetchTaskRunByLabel(ctx context.Context, label string) (*types.TaskRun, error)
	TaskRunsForPipeline(ctx context.Context, parentLabel string) ([]*types.TaskRun, error)
	DeleteTaskRunsForPipeline(ctx context.Context, parentLabel string) error
}

// Backend selects which Store implementation a jobs_db credential
// section binds to (spec §6).
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

// Config is the parsed jobs_db credential section (spec §6).
type Config struct {
	Backend Backend
	Host    string
	Port    int
	User    string
	Passwd  string

	// DocumentDir is the directory the document backend persists one
	// JSON file per label into, when Backend is mongo.
	DocumentDir string

	ConnectTimeout time.Duration
}
