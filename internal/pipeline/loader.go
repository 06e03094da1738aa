// Package pipeline loads a PipelineDefinition from the pipelines root
// layout of spec §6: <root>/<pipeline>/main.<ext>, referencing zero or
// more auxiliary files in the same directory. Parsed with
// gopkg.in/yaml.v3, whose native anchor (&name) and alias (*name)
// support is what satisfies spec §6's "Anchor/alias syntax within the
// descriptor is supported" without any extra code (SPEC_FULL §6).
package pipeline

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// mainCandidates lists the entry-descriptor names Load looks for, in
// order, under a pipeline directory (spec §6 "main.<ext>").
var mainCandidates = []string{"main.yaml", "main.yml"}

// Loader resolves pipeline names against a single pipelines root
// directory, matching the executor.PipelineLoader function type.
type Loader struct {
	Root string
}

func NewLoader(root string) *Loader {
	return &Loader{Root: root}
}

// Load reads <root>/<name>/main.<ext>, unmarshals it into a
// PipelineDefinition and fills in WorkPath for ${WORK_PATH} expansion.
// It does not call Validate; callers validate after loading so a
// ValidationError carries the pipeline name regardless of which check
// failed (spec §7).
func (l *Loader) Load(name string) (*types.PipelineDefinition, error) {
	workPath := filepath.Join(l.Root, name)
	info, err := os.Stat(workPath)
	if err != nil || !info.IsDir() {
		return nil, errs.Validation("pipeline %q: no such directory under pipelines root", name)
	}

	var raw []byte
	for _, candidate := range mainCandidates {
		b, err := os.ReadFile(filepath.Join(workPath, candidate))
		if err == nil {
			raw = b
			break
		}
		if !os.IsNotExist(err) {
			return nil, errs.Validation("pipeline %q: reading %s: %v", name, candidate, err)
		}
	}
	if raw == nil {
		return nil, errs.Validation("pipeline %q: no main descriptor found under %s", name, workPath)
	}

	var def types.PipelineDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, errs.Validation("pipeline %q: parsing descriptor: %v", name, err)
	}
	def.WorkPath = workPath
	return &def, nil
}
