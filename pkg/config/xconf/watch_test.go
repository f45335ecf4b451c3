package xconf

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "config.yaml", "retry:\n  maximum_attempts: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	changed := make(chan error, 4)
	w, err := Watch(context.Background(), cfg, func(_ Config, err error) {
		changed <- err
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { assert.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte("retry:\n  maximum_attempts: 9\n"), 0o600))

	select {
	case err := <-changed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reload not triggered")
	}
	assert.Equal(t, 9, cfg.Client().Int("retry.maximum_attempts"))
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "config.yaml", "a: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	changed := make(chan error, 1)
	w, err := Watch(context.Background(), cfg, func(_ Config, err error) {
		changed <- err
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path+".bak", []byte("a: 2\n"), 0o600))
	select {
	case <-changed:
		t.Fatal("unexpected reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_StopsWithContext(t *testing.T) {
	cfg, err := New(writeFile(t, "config.json", `{}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := Watch(ctx, cfg, nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not exit")
	}
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatch_NotWatchable(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{}`), FormatJSON)
	require.NoError(t, err)

	_, err = Watch(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrNotWatchable)

	_, err = Watch(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNotWatchable)
}
