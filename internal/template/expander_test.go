package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linlanniao/odinscheduler/internal/template"
	"github.com/linlanniao/odinscheduler/internal/types"
)

func testVars() template.Vars {
	return template.Vars{
		RootPath: "/pipelines/demo",
		WorkPath: "/pipelines/demo",
		RunPath:  "/var/lib/odinscheduler/runs/run-1",
		TaskID:   "run-1--train",
		TaskName: "train",
		PipeID:   "run-1",
	}
}

func TestExpand_SubstitutesAllVariables(t *testing.T) {
	v := testVars()
	got := v.Expand("${RUN_PATH}/output/${TASK_NAME}.log")
	assert.Equal(t, "/var/lib/odinscheduler/runs/run-1/output/train.log", got)
}

func TestExpand_UnknownVariablePassesThrough(t *testing.T) {
	v := testVars()
	got := v.Expand("${NOT_A_VAR}/x")
	assert.Equal(t, "${NOT_A_VAR}/x", got)
}

func TestExpand_NoRecursiveReexpansion(t *testing.T) {
	v := template.Vars{RunPath: "${TASK_NAME}", TaskName: "should-not-appear"}
	got := v.Expand("${RUN_PATH}")
	assert.Equal(t, "${TASK_NAME}", got)
}

func TestExpandTask_CopiesRatherThanMutatesInput(t *testing.T) {
	def := &types.TaskDefinition{
		Name:    "train",
		Image:   "repo/${TASK_NAME}:latest",
		Command: []string{"run", "${RUN_PATH}/script.sh"},
		Mounts:  []types.VolumeMount{{Claim: "data-pvc", Name: "data", Path: "${WORK_PATH}/data"}},
	}
	v := testVars()

	out := template.ExpandTask(def, v)

	assert.Equal(t, "repo/train:latest", out.Image)
	assert.Equal(t, []string{"run", "/var/lib/odinscheduler/runs/run-1/script.sh"}, out.Command)
	assert.Equal(t, "/pipelines/demo/data", out.Mounts[0].Path)

	// original def is untouched
	assert.Equal(t, "repo/${TASK_NAME}:latest", def.Image)
}
