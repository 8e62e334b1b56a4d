package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatch(t *testing.T, dir string) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	runs := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 50*time.Millisecond, zerolog.Nop(), func(context.Context) {
			runs <- struct{}{}
		})
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	return runs
}

func waitRun(t *testing.T, runs <-chan struct{}) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(3 * time.Second):
		t.Fatal("action did not run")
	}
}

func TestWatch_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	runs := startWatch(t, dir)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"), []byte(`{}`), 0o644))
	}
	waitRun(t, runs)

	select {
	case <-runs:
		t.Fatal("burst triggered more than one run")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_FollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	runs := startWatch(t, dir)

	sub := filepath.Join(dir, "workflows")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitRun(t, runs)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "orders.json"), []byte(`{}`), 0o644))
	waitRun(t, runs)
}

func TestWatch_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	runs := startWatch(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".orders.json.swp"), []byte(`x`), 0o644))
	select {
	case <-runs:
		t.Fatal("hidden file triggered a run")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), time.Millisecond, zerolog.Nop(), func(context.Context) {})
	assert.Error(t, err)
}
