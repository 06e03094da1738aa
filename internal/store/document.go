package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// DocumentStore is the Jobs Store backend selected when
// jobs_db.backend is "mongo" (spec §6). No MongoDB driver appears
// anywhere in the retrieved pack (teacher or siblings) to ground a real
// client on, so this is built on the standard library instead: one
// JSON file per label under dir, guarded by a sync.RWMutex the way the
// teacher guards its in-memory trackers with sync.Map
// (kbatch/alpha/v2/trackers.go). This is the one Jobs Store backend
// built on stdlib rather than a pack dependency; see DESIGN.md.
type DocumentStore struct {
	dir string
	mu  sync.RWMutex
}

func NewDocumentStore(dir string) (*DocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Store("init document store", err)
	}
	return &DocumentStore{dir: dir}, nil
}

type document struct {
	Run  *types.PipelineRun `json:"run"`
	Tasks []*types.TaskRun   `json:"tasks"`
}

func (s *DocumentStore) path(label string) string {
	return filepath.Join(s.dir, label+".json")
}

func (s *DocumentStore) read(label string) (*document, error) {
	b, err := os.ReadFile(s.path(label))
	if os.IsNotExist(err) {
		return nil, errs.Store("fetch", fmt.Errorf("label %q not found", label))
	}
	if err != nil {
		return nil, errs.Store("read", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errs.Store("decode", err)
	}
	return &doc, nil
}

func (s *DocumentStore) write(doc *document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Store("encode", err)
	}
	tmp := s.path(doc.Run.Label) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errs.Store("write", err)
	}
	return os.Rename(tmp, s.path(doc.Run.Label))
}

func (s *DocumentStore) CreatePipelineRun(ctx context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path(run.Label)); err == nil {
		return errs.Validation("pipeline run label %q already exists", run.Label)
	}
	return s.write(&document{Run: run})
}

func (s *DocumentStore) UpdatePipelineRun(ctx context.Context, run *types.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read(run.Label)
	if err != nil {
		return err
	}
	doc.Run = run
	return s.write(doc)
}

func (s *DocumentStore) FetchPipelineRunByLabel(ctx context.Context, label string) (*types.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := s.read(label)
	if err != nil {
		return nil, err
	}
	return doc.Run, nil
}

func (s *DocumentStore) SearchPipelineRuns(ctx context.Context, substring string) ([]*types.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Store("search", err)
	}
	var out []*types.PipelineRun
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		label := strings.TrimSuffix(e.Name(), ".json")
		if !strings.Contains(label, substring) {
			continue
		}
		doc, err := s.read(label)
		if err != nil {
			continue
		}
		out = append(out, doc.Run)
	}
	return out, nil
}

func (s *DocumentStore) DeletePipelineRun(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(label)); err != nil && !os.IsNotExist(err) {
		return errs.Store("delete", err)
	}
	return nil
}

func (s *DocumentStore) NonTerminalPipelineRuns(ctx context.Context) ([]*types.PipelineRun, error) {
	all, err := s.SearchPipelineRuns(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []*types.PipelineRun
	for _, r := range all {
		switch r.Status {
		case types.PipelineDone, types.PipelineTerminated, types.PipelineFailed:
		default:
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *DocumentStore) CreateTaskRun(ctx context.Context, t *types.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read(t.Parent)
	if err != nil {
		return err
	}
	doc.Tasks = append(doc.Tasks, t)
	return s.write(doc)
}

func (s *DocumentStore) UpdateTaskRunByLabel(ctx context.Context, label string, mutate func(*types.TaskRun) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := parentOf(label)
	doc, err := s.read(parent)
	if err != nil {
		return err
	}
	for _, t := range doc.Tasks {
		if t.Label == label {
			if err := mutate(t); err != nil {
				return err
			}
			return s.write(doc)
		}
	}
	return errs.Store("update task run", fmt.Errorf("label %q not found", label))
}

func (s *DocumentStore) FetchTaskRunByLabel(ctx context.Context, label string) (*types.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := s.read(parentOf(label))
	if err != nil {
		return nil, err
	}
	for _, t := range doc.Tasks {
		if t.Label == label {
			return t, nil
		}
	}
	return nil, errs.Store("fetch task run", fmt.Errorf("label %q not found", label))
}

func (s *DocumentStore) TaskRunsForPipeline(ctx context.Context, parentLabel string) ([]*types.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, err := s.read(parentLabel)
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

func (s *DocumentStore) DeleteTaskRunsForPipeline(ctx context.Context, parentLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read(parentLabel)
	if err != nil {
		return err
	}
	doc.Tasks = nil
	return s.write(doc)
}

// parentOf recovers a PipelineRun label from a TaskRun label using the
// I2 "parent--name" separator.
func parentOf(taskLabel string) string {
	if idx := strings.LastIndex(taskLabel, "--"); idx >= 0 {
		return taskLabel[:idx]
	}
	return taskLabel
}
