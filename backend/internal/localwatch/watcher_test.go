package localwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpName(t *testing.T) {
	assert.Equal(t, "created", opName(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, "written", opName(fsnotify.Write))
	assert.Equal(t, "removed", opName(fsnotify.Remove))
	assert.Equal(t, "renamed", opName(fsnotify.Rename))
	assert.Equal(t, "", opName(fsnotify.Chmod))
}

func TestWatcherReportsCreate(t *testing.T) {
	dir := t.TempDir()
	events := make(chan Event, 16)

	w, err := NewWatcherService(context.Background(), func(ev Event) { events <- ev }, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.AddWatch(dir))
	require.NoError(t, w.AddWatch(dir))
	go w.Start()
	defer w.Stop()

	target := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o600))

	select {
	case ev := <-events:
		assert.Equal(t, target, ev.Name)
		assert.Contains(t, []string{"created", "written"}, ev.Op)
		assert.Contains(t, ev.String(), "a.txt")
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestAddWatchIsIdempotent(t *testing.T) {
	w, err := NewWatcherService(context.Background(), nil, zerolog.Nop())
	require.NoError(t, err)
	go w.Start()
	defer w.Stop()

	dir := t.TempDir()
	require.NoError(t, w.AddWatch(dir))
	require.NoError(t, w.AddWatch(dir))
	assert.Len(t, w.watched, 1)
}
