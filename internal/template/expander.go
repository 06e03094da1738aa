// Package template substitutes pipeline-scope variables into task
// descriptor strings (spec §4.1). It deliberately avoids text/template
// and Masterminds/sprig: both recursively re-expand their output and
// support control flow, which the spec's "no recursive re-expansion"
// rule forbids. strings.Replacer performs a single left-to-right pass
// and leaves unknown variables untouched, which is exactly the
// contract required.
package template

import "strings"

// Vars is the fixed variable table of spec §4.1.
type Vars struct {
	RootPath string
	WorkPath string
	RunPath  string
	TaskID   string
	TaskName string
	PipeID   string
}

func (v Vars) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"${ROOT_PATH}", v.RootPath,
		"${WORK_PATH}", v.WorkPath,
		"${RUN_PATH}", v.RunPath,
		"${TASK_ID}", v.TaskID,
		"${TASK_NAME}", v.TaskName,
		"${PIPE_ID}", v.PipeID,
	)
}

// Expand substitutes v's variables into s, once, left to right. Unknown
// `${...}` references pass through unchanged. Idempotent: expanding an
// already-expanded string is a no-op, because none of the replacement
// values themselves contain a recognized variable reference once a
// caller builds Vars from already-resolved paths and labels (spec §8
// "template expansion is idempotent").
func (v Vars) Expand(s string) string {
	return v.replacer().Replace(s)
}

// ExpandAll returns a new slice holding every string of ss expanded;
// ss itself is not modified.
func (v Vars) ExpandAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = v.Expand(s)
	}
	return out
}
