package template

import "github.com/linlanniao/odinscheduler/internal/types"

// ExpandTask applies v to every string field of def that spec §4.1 names
// (args, image, mount path, command) and returns an expanded copy; def
// itself is left untouched since a PipelineDefinition is immutable once
// loaded for a run.
func ExpandTask(def *types.TaskDefinition, v Vars) *types.TaskDefinition {
	out := *def
	out.Image = v.Expand(def.Image)
	out.Command = v.ExpandAll(def.Command)
	out.Args = v.ExpandAll(def.Args)

	if len(def.Mounts) > 0 {
		out.Mounts = make([]types.VolumeMount, len(def.Mounts))
		for i, m := range def.Mounts {
			out.Mounts[i] = types.VolumeMount{
				Claim: v.Expand(m.Claim),
				Name:  m.Name,
				Path:  v.Expand(m.Path),
			}
		}
	}
	return &out
}
