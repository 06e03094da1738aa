// Package dag builds the dependency graph described in spec §4.2 and
// §9 Design Notes: an arena of TaskRun stub nodes plus index-based
// adjacency (successor list and predecessor-count per node). This
// avoids cyclic ownership and turns topological progression into a
// counter-decrement, mirroring the arena/adjacency idiom the spec's
// Design Notes call for rather than a pointer-linked tree.
package dag

import (
	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// Node is one arena entry: a TaskRun stub plus its graph position.
type Node struct {
	Task            *types.TaskRun
	DependsOn       string // task name, empty if none
	successors      []int  // indices into Graph.Nodes
	predecessorLeft int    // number of unsatisfied predecessors
}

// Graph is the built DAG: nodes in declaration order, plus adjacency.
type Graph struct {
	Nodes   []*Node
	byName  map[string]int
}

// Build resolves depends references, detects cycles, and returns the
// graph. defs must already be name-unique and template-expanded.
// parentLabel is the owning PipelineRun's label, used to derive each
// TaskRun's full label (I2).
func Build(parentLabel string, defs []*types.TaskDefinition) (*Graph, error) {
	g := &Graph{
		Nodes:  make([]*Node, len(defs)),
		byName: make(map[string]int, len(defs)),
	}

	for i, def := range defs {
		g.Nodes[i] = &Node{
			Task:      types.NewTaskRun(parentLabel, def),
			DependsOn: def.Depends,
		}
		g.byName[def.Name] = i
	}

	// wire adjacency, validating references
	for i, n := range g.Nodes {
		if n.DependsOn == "" {
			continue
		}
		depIdx, ok := g.byName[n.DependsOn]
		if !ok {
			return nil, errs.UnknownDependency(n.Task.Name, n.DependsOn)
		}
		g.Nodes[depIdx].successors = append(g.Nodes[depIdx].successors, i)
		n.predecessorLeft = 1
	}

	if cycleNode := g.detectCycle(); cycleNode != "" {
		return nil, errs.CycleDetected(cycleNode)
	}

	return g, nil
}

// detectCycle runs a white/gray/black DFS over declaration order (so
// the reported offending node is deterministic) and returns the first
// node found on a cycle, or "" if the graph is acyclic.
func (g *Graph) detectCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.Nodes))

	var visit func(i int) string
	visit = func(i int) string {
		color[i] = gray
		for _, succ := range g.Nodes[i].successors {
			switch color[succ] {
			case gray:
				return g.Nodes[succ].Task.Name
			case white:
				if name := visit(succ); name != "" {
					return name
				}
			}
		}
		color[i] = black
		return ""
	}

	for i := range g.Nodes {
		if color[i] == white {
			if name := visit(i); name != "" {
				return name
			}
		}
	}
	return ""
}

// ReadySet returns the nodes with no unsatisfied predecessor, in
// declaration order (spec §4.2 tie-breaking rule, S3). A BUILDING node
// whose resource_id is still unset is also ready: it means a prior
// submit attempt was interrupted between the WAITING->BUILDING store
// write and the one that binds resource_id and moves to EXECUTING
// (executor.go submitTask), so it must re-enter the submit path rather
// than sit in BUILDING forever. Per §4.6 this duplicate submit is only
// permitted while resource_id is unset; once it is set, ReadySet leaves
// the BUILDING node out, so it is not submitted again.
func (g *Graph) ReadySet() []*Node {
	ready := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.predecessorLeft != 0 {
			continue
		}
		switch n.Task.Status {
		case types.TaskWaiting:
			ready = append(ready, n)
		case types.TaskBuilding:
			if n.Task.ResourceID == "" {
				ready = append(ready, n)
			}
		}
	}
	return ready
}

// Advance marks idx's dependents' predecessor count down by one. Call
// once idx's task has reached EXECUTED, so its successors may become
// ready on the next ReadySet call.
func (g *Graph) Advance(idx int) {
	for _, succ := range g.Nodes[idx].successors {
		if g.Nodes[succ].predecessorLeft > 0 {
			g.Nodes[succ].predecessorLeft--
		}
	}
}

// IndexOf returns the arena index of the node with the given task name.
func (g *Graph) IndexOf(taskName string) (int, bool) {
	i, ok := g.byName[taskName]
	return i, ok
}

// TerminateDependents marks every transitive successor of idx as
// TERMINATED (spec §4.6 point 5: a FAILED task's dependents never
// become ready and are not submitted). Returns the labels terminated.
func (g *Graph) TerminateDependents(idx int) []string {
	var terminated []string
	var visit func(i int)
	visit = func(i int) {
		for _, succ := range g.Nodes[i].successors {
			n := g.Nodes[succ]
			if n.Task.Status.IsTerminal() {
				continue
			}
			n.Task.Status = types.TaskTerminated
			terminated = append(terminated, n.Task.Label)
			visit(succ)
		}
	}
	visit(idx)
	return terminated
}
