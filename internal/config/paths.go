package config

import (
	"os"
	"path/filepath"
)

// PilotPath returns the root directory for the daemon's on-disk state.
// It uses $PILOT_PATH if set, otherwise defaults to ~/.pilot.
func PilotPath() string {
	if v := os.Getenv("PILOT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pilot")
	}
	return filepath.Join(home, ".pilot")
}

// ConfigPath returns the path to the daemon's config file.
func ConfigPath() string {
	return filepath.Join(PilotPath(), "config.jsonc")
}

// DotenvPath returns the path to the daemon's .env file.
func DotenvPath() string {
	return filepath.Join(PilotPath(), ".env")
}

// MemoryPath returns the path to the semantic memory store file.
func MemoryPath() string {
	return filepath.Join(PilotPath(), "memory.jsonl")
}

// ScheduleDir returns the directory holding one subdirectory per persisted
// schedule entry (dirstore-backed, one meta.json each).
func ScheduleDir() string {
	return filepath.Join(PilotPath(), "schedule")
}

// HistoryDir returns the directory holding one JSONL file per task's
// terminal-transition history.
func HistoryDir() string {
	return filepath.Join(PilotPath(), "history")
}
