package control

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_UnmarshalsOpAndFields(t *testing.T) {
	raw := []byte(`{"op":"RUN","pipeline":"demo"}`)
	var req Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "RUN", req.Op)
	assert.Equal(t, "demo", req.Pipeline)
}

func TestOk_MarshalsSuccessResponse(t *testing.T) {
	resp := ok(map[string]string{"label": "run-1"})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Status)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"success":true`)
}

func TestFail_FormatsMessageAndSetsErrorStatus(t *testing.T) {
	resp := fail("pipeline %q not found", "ghost")
	assert.False(t, resp.Success)
	assert.Equal(t, "ERROR", resp.Status)
	assert.Equal(t, `pipeline "ghost" not found`, resp.Response)
}

func TestIsTaskLabel(t *testing.T) {
	assert.True(t, isTaskLabel("run-1--train"))
	assert.False(t, isTaskLabel("run-1"))
}
