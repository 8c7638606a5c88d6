package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Submitter is the narrow engine capability the scheduler needs: allocate a
// task for a goal. Satisfied by *lifecycle.Engine.
type Submitter interface {
	Submit(goal string) string
}

// Scheduler triggers cron-due entries by submitting their goal to the
// lifecycle engine. One tick per minute, matching the teacher's cron
// resolution (§5 Scheduling model does not require finer granularity).
type Scheduler struct {
	submitter Submitter
	store     *Store

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	done chan struct{}
}

type runtimeEntry struct {
	entry *Entry
	cron  *CronExpr
}

// New constructs a Scheduler. store may be nil, in which case entries are
// in-memory only and do not survive a restart.
func New(submitter Submitter, store *Store) *Scheduler {
	return &Scheduler{
		submitter: submitter,
		store:     store,
		entries:   make(map[string]*runtimeEntry),
		done:      make(chan struct{}),
	}
}

// Start loads any persisted entries and begins the cron tick loop.
func (s *Scheduler) Start() {
	s.loadPersisted()
	slog.Info("scheduler started", "entries", len(s.entries))
	go s.loop()
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() {
	close(s.done)
}

// Add registers a new cron-driven goal and persists it if a store is
// configured.
func (s *Scheduler) Add(goal, cronSpec string) (*Entry, error) {
	expr, err := ParseCron(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	e := &Entry{Goal: goal, Cron: cronSpec}
	if s.store != nil {
		if err := s.store.Create(e); err != nil {
			return nil, fmt.Errorf("persist schedule entry: %w", err)
		}
	} else {
		e.ID = fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
		e.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.entries[e.ID] = &runtimeEntry{entry: e, cron: expr}
	s.mu.Unlock()

	return e, nil
}

// List returns a snapshot of all known entries.
func (s *Scheduler) List() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, re := range s.entries {
		out = append(out, re.entry)
	}
	return out
}

func (s *Scheduler) loadPersisted() {
	if s.store == nil {
		return
	}
	entries, err := s.store.List()
	if err != nil {
		slog.Warn("scheduler: failed to load persisted entries", "error", err)
		return
	}
	for _, e := range entries {
		expr, err := ParseCron(e.Cron)
		if err != nil {
			slog.Warn("scheduler: invalid cron in persisted entry", "id", e.ID, "error", err)
			continue
		}
		s.entries[e.ID] = &runtimeEntry{entry: e, cron: expr}
	}
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkDue(now)
		}
	}
}

func (s *Scheduler) checkDue(now time.Time) {
	s.mu.Lock()
	due := make([]*runtimeEntry, 0)
	for _, re := range s.entries {
		if re.cron.Matches(now) {
			due = append(due, re)
		}
	}
	s.mu.Unlock()

	for _, re := range due {
		s.trigger(re)
	}
}

func (s *Scheduler) trigger(re *runtimeEntry) {
	taskID := s.submitter.Submit(re.entry.Goal)

	now := time.Now()
	s.mu.Lock()
	re.entry.LastRunAt = &now
	re.entry.RunCount++
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Update(re.entry); err != nil {
			slog.Warn("scheduler: failed to persist entry run", "id", re.entry.ID, "error", err)
		}
	}

	slog.Info("scheduler: triggered", "entry_id", re.entry.ID, "task_id", taskID)
}
