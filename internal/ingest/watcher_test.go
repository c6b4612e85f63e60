package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherBatchesRecordChanges(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evCh, _, err := StartWatcher(ctx, WatchConfig{Dir: dir, Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-c.json"), []byte("{}"), 0o644))

	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for !(seen["a"] && seen["b"]) {
		select {
		case ids := <-evCh:
			for _, id := range ids {
				seen[id] = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for watcher, saw %v", seen)
		}
	}
	assert.False(t, seen["notes"])
	assert.False(t, seen[".tmp-c"])

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-evCh:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherRequiresDir(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}

func TestRecordID(t *testing.T) {
	tests := []struct {
		name   string
		event  fsnotify.Event
		wantID string
		wantOK bool
	}{
		{"create", fsnotify.Event{Name: "/x/claim-1.json", Op: fsnotify.Create}, "claim-1", true},
		{"remove", fsnotify.Event{Name: "/x/claim-1.json", Op: fsnotify.Remove}, "claim-1", true},
		{"chmod ignored", fsnotify.Event{Name: "/x/claim-1.json", Op: fsnotify.Chmod}, "", false},
		{"other extension", fsnotify.Event{Name: "/x/claim-1.pdf", Op: fsnotify.Create}, "", false},
		{"hidden", fsnotify.Event{Name: "/x/.claim-1.json", Op: fsnotify.Write}, "", false},
		{"bare extension", fsnotify.Event{Name: "/x/.json", Op: fsnotify.Write}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := recordID(tt.event, "json")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
