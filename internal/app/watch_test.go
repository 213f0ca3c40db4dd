package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloadsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	base := `
data_dir: ` + dir + `
sources:
  in:
    type: demo
    count: 1
sinks:
  out:
    type: blackhole
    inputs: [in]
`
	path := writeConfig(t, dir, base)

	a, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Stop(ctx)

	cw, err := newConfigWatcher(a, 20*time.Millisecond)
	require.NoError(t, err)
	go cw.run(ctx)

	require.NoError(t, os.WriteFile(path, []byte(base+"\n# touched\n"), 0o644))

	require.Eventually(t, func() bool {
		return cw.hashFile() != [32]byte{} && cw.lastHash == cw.hashFile()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfigWatcherSkipsReloadWhenHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	base := `
data_dir: ` + dir + `
sources:
  in:
    type: demo
    count: 1
sinks:
  out:
    type: blackhole
    inputs: [in]
`
	path := writeConfig(t, dir, base)

	a, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Stop(ctx)

	cw, err := newConfigWatcher(a, 20*time.Millisecond)
	require.NoError(t, err)
	initial := cw.lastHash

	require.NoError(t, os.Chtimes(path, time.Now(), time.Now()))
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, initial, cw.lastHash, "touching mtime without content change must not update lastHash outside run()")
}
