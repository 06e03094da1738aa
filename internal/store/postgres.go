package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// PostgresStore is the relational Jobs Store backend, grounded on
// jordigilh-kubernaut's pgx/v5 + sqlx pairing: pgx supplies the
// driver, sqlx the struct-scanning convenience the teacher's own code
// never needed (it has no SQL backend) but the pack's storage-capable
// sibling does.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a pool against cfg and registers it under
// sqlx, using pgx's stdlib adapter so sqlx's struct scanning works
// unchanged against a pgx connection.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/odinscheduler?sslmode=disable", cfg.User, cfg.Passwd, cfg.Host, cfg.Port)
	sqlDB := stdlib.OpenDB(*mustParseConfig(dsn))
	db := sqlx.NewDb(sqlDB, "pgx")
	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errs.Store("connect", err)
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying *sql.DB for Migrate.
func (s *PostgresStore) DB() *sql.DB { return s.db.DB }

func (s *PostgresStore) CreatePipelineRun(ctx context.Context, run *types.PipelineRun) error {
	children, _ := json.Marshal(run.Children)
	labels, _ := json.Marshal(run.Labels)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (label, job, version, parent, status, submit_time, children, labels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.Label, run.Job, run.Version, run.Parent, run.Status, run.SubmitTime, children, labels)
	if isUniqueViolation(err) {
		return errs.Validation("pipeline run label %q already exists", run.Label)
	}
	if err != nil {
		return errs.Store("create pipeline run", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePipelineRun(ctx context.Context, run *types.PipelineRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status=$2, completion_time=$3, error_message=$4 WHERE label=$1`,
		run.Label, run.Status, run.CompletionTime, run.ErrorMessage)
	if err != nil {
		return errs.Store("update pipeline run", err)
	}
	return nil
}

func (s *PostgresStore) FetchPipelineRunByLabel(ctx context.Context, label string) (*types.PipelineRun, error) {
	var row pipelineRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM pipeline_runs WHERE label=$1`, label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Store("fetch pipeline run", fmt.Errorf("label %q not found", label))
	}
	if err != nil {
		return nil, errs.Store("fetch pipeline run", err)
	}
	return row.toPipelineRun(), nil
}

func (s *PostgresStore) SearchPipelineRuns(ctx context.Context, substring string) ([]*types.PipelineRun, error) {
	var rows []pipelineRunRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pipeline_runs WHERE label ILIKE $1 OR job ILIKE $1`, "%"+substring+"%")
	if err != nil {
		return nil, errs.Store("search pipeline runs", err)
	}
	out := make([]*types.PipelineRun, len(rows))
	for i := range rows {
		out[i] = rows[i].toPipelineRun()
	}
	return out, nil
}

func (s *PostgresStore) DeletePipelineRun(ctx context.Context, label string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE label=$1`, label)
	if err != nil {
		return errs.Store("delete pipeline run", err)
	}
	return nil
}

func (s *PostgresStore) NonTerminalPipelineRuns(ctx context.Context) ([]*types.PipelineRun, error) {
	var rows []pipelineRunRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM pipeline_runs WHERE status NOT IN ($1, $2, $3)`,
		types.PipelineDone, types.PipelineTerminated, types.PipelineFailed)
	if err != nil {
		return nil, errs.Store("list non-terminal pipeline runs", err)
	}
	out := make([]*types.PipelineRun, len(rows))
	for i := range rows {
		out[i] = rows[i].toPipelineRun()
	}
	return out, nil
}

func (s *PostgresStore) CreateTaskRun(ctx context.Context, t *types.TaskRun) error {
	spec, err := json.Marshal(specOf(t))
	if err != nil {
		return errs.Store("marshal task spec", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_runs (label, parent, name, image, resource_type, resource_id, status, attempts, spec)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.Label, t.Parent, t.Name, t.Image, t.Resource, t.ResourceID, t.Status, t.Attempts, spec)
	if isUniqueViolation(err) {
		return errs.Validation("task run label %q already exists", t.Label)
	}
	if err != nil {
		return errs.Store("create task run", err)
	}
	return nil
}

// UpdateTaskRunByLabel wraps the read-modify-write in a transaction
// with a row lock (SELECT ... FOR UPDATE), which is how Postgres gives
// the atomic update-by-label spec §4.8 requires without a
// compare-and-swap API.
func (s *PostgresStore) UpdateTaskRunByLabel(ctx context.Context, label string, mutate func(*types.TaskRun) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Store("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var row taskRunRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM task_runs WHERE label=$1 FOR UPDATE`, label); err != nil {
		return errs.Store("lock task run", err)
	}
	t := row.toTaskRun()
	if err := mutate(t); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE task_runs SET resource_id=$2, status=$3, attempts=$4, submit_time=$5, completion_time=$6, error_message=$7
		WHERE label=$1`,
		t.Label, t.ResourceID, t.Status, t.Attempts, t.SubmitTime, t.CompletionTime, t.ErrorMessage)
	if err != nil {
		return errs.Store("update task run", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) FetchTaskRunByLabel(ctx context.Context, label string) (*types.TaskRun, error) {
	var row taskRunRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM task_runs WHERE label=$1`, label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Store("fetch task run", fmt.Errorf("label %q not found", label))
	}
	if err != nil {
		return nil, errs.Store("fetch task run", err)
	}
	return row.toTaskRun(), nil
}

func (s *PostgresStore) TaskRunsForPipeline(ctx context.Context, parentLabel string) ([]*types.TaskRun, error) {
	var rows []taskRunRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM task_runs WHERE parent=$1 ORDER BY label`, parentLabel)
	if err != nil {
		return nil, errs.Store("list task runs", err)
	}
	out := make([]*types.TaskRun, len(rows))
	for i := range rows {
		out[i] = rows[i].toTaskRun()
	}
	return out, nil
}

func (s *PostgresStore) DeleteTaskRunsForPipeline(ctx context.Context, parentLabel string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_runs WHERE parent=$1`, parentLabel)
	if err != nil {
		return errs.Store("delete task runs", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}
