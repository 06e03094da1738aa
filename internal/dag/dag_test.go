package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/dag"
	"github.com/linlanniao/odinscheduler/internal/types"
)

func defs(names ...[2]string) []*types.TaskDefinition {
	out := make([]*types.TaskDefinition, len(names))
	for i, n := range names {
		out[i] = &types.TaskDefinition{Name: n[0], Image: "alpine", Depends: n[1]}
	}
	return out
}

func TestBuild_LinearChainReadyOrder(t *testing.T) {
	g, err := dag.Build("run-1", defs([2]string{"a", ""}, [2]string{"b", "a"}, [2]string{"c", "b"}))
	require.NoError(t, err)

	ready := g.ReadySet()
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].Task.Name)

	idx, ok := g.IndexOf("a")
	require.True(t, ok)
	g.Advance(idx)

	ready = g.ReadySet()
	require.Len(t, ready, 2)
	// a is still WAITING (ReadySet doesn't mutate status), so it stays
	// ready, ahead of b which Advance just released
	assert.Equal(t, []string{"a", "b"}, []string{ready[0].Task.Name, ready[1].Task.Name})
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := dag.Build("run-1", defs([2]string{"a", "ghost"}))
	assert.Error(t, err)
}

func TestBuild_CycleDetected(t *testing.T) {
	_, err := dag.Build("run-1", defs([2]string{"a", "b"}, [2]string{"b", "a"}))
	assert.Error(t, err)
}

func TestTerminateDependents_CascadesTransitively(t *testing.T) {
	g, err := dag.Build("run-1", defs([2]string{"a", ""}, [2]string{"b", "a"}, [2]string{"c", "b"}))
	require.NoError(t, err)

	idx, ok := g.IndexOf("a")
	require.True(t, ok)

	terminated := g.TerminateDependents(idx)
	assert.ElementsMatch(t, []string{"run-1--b", "run-1--c"}, terminated)
}

func TestReadySet_BuildingWithNoResourceIDIsReadyAgain(t *testing.T) {
	g, err := dag.Build("run-1", defs([2]string{"a", ""}))
	require.NoError(t, err)

	g.Nodes[0].Task.Status = types.TaskBuilding
	ready := g.ReadySet()
	require.Len(t, ready, 1, "a BUILDING task with no resource_id must re-enter the ready set")
	assert.Equal(t, "a", ready[0].Task.Name)

	g.Nodes[0].Task.ResourceID = "resource-run-1--a"
	assert.Empty(t, g.ReadySet(), "once resource_id is bound, the BUILDING task is left out of the ready set and not resubmitted")
}

func TestReadySet_DeclarationOrderTieBreak(t *testing.T) {
	g, err := dag.Build("run-1", defs([2]string{"b", ""}, [2]string{"a", ""}, [2]string{"c", ""}))
	require.NoError(t, err)

	ready := g.ReadySet()
	require.Len(t, ready, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{ready[0].Task.Name, ready[1].Task.Name, ready[2].Task.Name})
}
