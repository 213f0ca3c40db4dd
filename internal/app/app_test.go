package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewBuildsRunnableAppFromMinimalConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
data_dir: `+dir+`
sources:
  in:
    type: demo
    count: 3
sinks:
  out:
    type: blackhole
    inputs: [in]
`)

	a, err := New(path)
	require.NoError(t, err)
	require.Nil(t, a.admin, "api.enabled defaults to false")

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))
}

func TestNewEnablesAdminServerWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
data_dir: `+dir+`
api:
  enabled: true
  address: "127.0.0.1:0"
sources:
  in:
    type: demo
sinks:
  out:
    type: blackhole
    inputs: [in]
`)

	a, err := New(path)
	require.NoError(t, err)
	require.NotNil(t, a.admin)
}

func TestNewRejectsUnknownSinkType(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
data_dir: `+dir+`
sources:
  in:
    type: demo
sinks:
  out:
    type: nonexistent
    inputs: [in]
`)

	_, err := New(path)
	require.Error(t, err)
}
