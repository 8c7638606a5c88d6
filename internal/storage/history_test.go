package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remotepilot/daemon/internal/events"
)

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func readLines(t *testing.T, path string) []HistoryEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e HistoryEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestHistoryStore_WritesOnTerminalState(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(16)
	hs := NewHistoryStore(dir, bus)
	defer hs.Close()

	bus.Publish(events.NewStateEvent("task-1", "PLANNING"))
	bus.Publish(events.NewStateEvent("task-1", "ACT"))
	bus.Publish(events.NewStateEvent("task-1", "DONE"))

	path := filepath.Join(dir, "task-1.jsonl")
	waitForFile(t, path)

	entries := readLines(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "DONE", entries[0].Status)
	require.Equal(t, "task-1", entries[0].TaskID)
}

func TestHistoryStore_IgnoresLogEvents(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(16)
	hs := NewHistoryStore(dir, bus)
	defer hs.Close()

	bus.Publish(events.NewLogEvent("task-2", "planner", "generated 3 steps", events.SeverityInfo))
	bus.Publish(events.NewStateEvent("task-2", "FAILED"))

	path := filepath.Join(dir, "task-2.jsonl")
	waitForFile(t, path)

	entries := readLines(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "FAILED", entries[0].Status)
}

func TestHistoryStore_SeparateFilesPerTask(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(16)
	hs := NewHistoryStore(dir, bus)
	defer hs.Close()

	bus.Publish(events.NewStateEvent("task-a", "DONE"))
	bus.Publish(events.NewStateEvent("task-b", "FAILED"))

	waitForFile(t, filepath.Join(dir, "task-a.jsonl"))
	waitForFile(t, filepath.Join(dir, "task-b.jsonl"))

	a := readLines(t, filepath.Join(dir, "task-a.jsonl"))
	b := readLines(t, filepath.Join(dir, "task-b.jsonl"))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, "DONE", a[0].Status)
	require.Equal(t, "FAILED", b[0].Status)
}

func TestHistoryStore_CloseUnsubscribes(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(16)
	hs := NewHistoryStore(dir, bus)
	hs.Close()

	bus.Publish(events.NewStateEvent("task-3", "DONE"))
	time.Sleep(50 * time.Millisecond)

	_, err := os.Stat(filepath.Join(dir, "task-3.jsonl"))
	require.True(t, os.IsNotExist(err))
}
