package executor

import (
	"strings"

	"github.com/google/uuid"
)

// NewPipelineLabel generates a globally-unique PipelineRun label
// matching flow-[a-z0-9]+ (spec S1), grounded on the teacher's
// common.RandStr family but built on google/uuid rather than
// math/rand/v2 since uniqueness here backs a durable record, not a
// disposable Kubernetes generateName suffix.
func NewPipelineLabel() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "flow-" + raw[:12]
}
