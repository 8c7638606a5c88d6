package scheduler

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/remotepilot/daemon/internal/storage/dirstore"
)

// Entry is one persisted cron-driven goal (§3 Schedule entry).
type Entry struct {
	ID        string     `json:"id"`
	Goal      string     `json:"goal"`
	Cron      string     `json:"cron"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	RunCount  int        `json:"run_count"`
}

// Store persists Entry records one directory per entry, the way the
// teacher persists its dynamic schedule entries.
type Store struct {
	ds *dirstore.DirStore
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{ds: dirstore.NewDirStore(baseDir, "schedule")}
}

// Create persists a new entry, assigning an ID if none was given.
func (s *Store) Create(e *Entry) error {
	s.ds.Lock()
	defer s.ds.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now()

	if err := s.ds.EnsureDir(e.ID); err != nil {
		return err
	}
	return s.ds.WriteMeta(e.ID, e)
}

// Update rewrites an entry's persisted state (last_run_at, run_count).
func (s *Store) Update(e *Entry) error {
	s.ds.Lock()
	defer s.ds.Unlock()
	return s.ds.WriteMeta(e.ID, e)
}

// Delete removes an entry.
func (s *Store) Delete(id string) error {
	s.ds.Lock()
	defer s.ds.Unlock()
	return s.ds.RemoveDir(id)
}

// List returns all entries, most recently created first. Corrupted entries
// are skipped.
func (s *Store) List() ([]*Entry, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	dirs, err := s.ds.ListDirs()
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, name := range dirs {
		var e Entry
		if err := s.ds.ReadMeta(name, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
