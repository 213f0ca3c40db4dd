package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flow.yaml", `
data_dir: /var/lib/flowcore
sources:
  in:
    type: demo
    count: 5
sinks:
  out:
    type: blackhole
    inputs: [in]
`)
	doc, err := Load(filepath.Join(dir, "flow.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/flowcore", doc.DataDir)
	require.Contains(t, doc.Sources, "in")
	require.Equal(t, "demo", doc.Sources["in"]["type"])
	require.Contains(t, doc.Sinks, "out")
}

func TestLoadDirectoryMergesDeterministically(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "00-base.yaml", `
data_dir: /var/lib/flowcore
sources:
  in:
    type: demo
`)
	writeFile(t, dir, "10-override.yaml", `
data_dir: /override
sources:
  in:
    count: 10
`)
	doc, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "/override", doc.DataDir)
	require.Equal(t, "demo", doc.Sources["in"]["type"])
	require.Equal(t, 10, doc.Sources["in"]["count"])
}

func TestComponentDocExtractsTypeAndInputs(t *testing.T) {
	c := rawComponent{"type": "http", "inputs": []interface{}{"a", "b"}}
	d := c.asComponentDoc()
	require.Equal(t, "http", d.Type)
	require.Equal(t, []string{"a", "b"}, d.Inputs)
}

func TestEnvOverrideAppliesDataDir(t *testing.T) {
	t.Setenv("FLOWCORE_DATA_DIR", "/env/data")
	doc := &Document{DataDir: "/file/data"}
	applyEnvOverrides(doc)
	require.Equal(t, "/env/data", doc.DataDir)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	doc := &Document{}
	applyDefaults(doc)
	require.Equal(t, "/var/lib/flowcore", doc.DataDir)
	require.Equal(t, 30*time.Second, doc.Process.GracePeriod(0))
	require.Equal(t, "flowcore", doc.Tracing.ServiceName)
}
