package cluster

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	s := NewStore()
	require.NoError(t, s.Load(path))
	require.Equal(t, 2, s.Len())

	w, err := NewWatcher(s, []string{path}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	trimmed := strings.Replace(testKubeconfig, "- name: beta-admin\n  context:\n    cluster: beta\n    user: admin\n", "", 1)
	require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o600))

	assert.Eventually(t, func() bool { return s.Len() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_ErrorCallbackOnBadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	errCh := make(chan error, 4)
	w, err := NewWatcher(NewStore(), []string{path},
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errCh <- err:
			default:
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("contexts: [unterminated"), 0o600))

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected reload error")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(NewStore(), []string{t.TempDir() + "/config"})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
