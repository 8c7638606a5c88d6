// Package storage persists task history to disk: one JSONL file per task,
// appended to on every terminal transition (§4.10).
package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/remotepilot/daemon/internal/events"
	"github.com/remotepilot/daemon/internal/task"
)

// HistoryEntry is one line of a task's history file.
type HistoryEntry struct {
	TaskID    string       `json:"task_id"`
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Event     events.Event `json:"event"`
}

// HistoryStore subscribes to the registry's global event bus and appends a
// line to dir/<task_id>.jsonl whenever a task reaches DONE or FAILED.
// Append failures are logged and otherwise ignored — history is a
// best-effort record, never load-bearing for task execution (§7).
type HistoryStore struct {
	dir         string
	bus         *events.Bus
	unsubscribe func()
}

// NewHistoryStore creates a HistoryStore that subscribes to bus and writes
// terminal-transition records under dir.
func NewHistoryStore(dir string, bus *events.Bus) *HistoryStore {
	hs := &HistoryStore{dir: dir, bus: bus}
	hs.unsubscribe = bus.Subscribe(hs.handleEvent)
	return hs
}

// Close unsubscribes the store from the event bus.
func (hs *HistoryStore) Close() {
	if hs.unsubscribe != nil {
		hs.unsubscribe()
	}
}

func (hs *HistoryStore) handleEvent(e events.Event) {
	if e.Type != events.EventState {
		return
	}
	payload, ok := e.Data.(events.StatePayload)
	if !ok {
		return
	}
	if !task.State(payload.Status).Terminal() {
		return
	}
	if err := hs.writeEvent(e, payload.Status); err != nil {
		slog.Error("write task history", "task_id", e.TaskID, "error", err)
	}
}

func (hs *HistoryStore) writeEvent(e events.Event, status string) error {
	entry := HistoryEntry{
		TaskID:    e.TaskID,
		Status:    status,
		Timestamp: e.Timestamp.Format(timeLayout),
		Event:     e,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := hs.logPath(e.TaskID)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (hs *HistoryStore) logPath(taskID string) string {
	return filepath.Join(hs.dir, taskID+".jsonl")
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
