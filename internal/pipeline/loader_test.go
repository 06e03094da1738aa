package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/pipeline"
)

func writeDescriptor(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.yaml"), []byte(body), 0o644))
}

func TestLoad_ParsesDescriptorAndSetsWorkPath(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, "demo", `
name: demo
tasks:
  - name: train
    image: repo/train:latest
    command: ["python", "train.py"]
`)

	l := pipeline.NewLoader(root)
	def, err := l.Load("demo")
	require.NoError(t, err)

	assert.Equal(t, "demo", def.Name)
	require.Len(t, def.Tasks, 1)
	assert.Equal(t, "train", def.Tasks[0].Name)
	assert.Equal(t, filepath.Join(root, "demo"), def.WorkPath)
}

func TestLoad_AnchorAliasExpansion(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, "demo", `
name: demo
tasks:
  - name: train
    image: &img repo/train:latest
    command: ["python", "train.py"]
  - name: eval
    image: *img
    command: ["python", "eval.py"]
    depends: train
`)

	l := pipeline.NewLoader(root)
	def, err := l.Load("demo")
	require.NoError(t, err)
	require.Len(t, def.Tasks, 2)
	assert.Equal(t, def.Tasks[0].Image, def.Tasks[1].Image)
}

func TestLoad_MissingDirectory(t *testing.T) {
	root := t.TempDir()
	l := pipeline.NewLoader(root)
	_, err := l.Load("ghost")
	assert.Error(t, err)
}

func TestLoad_MissingMainDescriptor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo"), 0o755))
	l := pipeline.NewLoader(root)
	_, err := l.Load("demo")
	assert.Error(t, err)
}
