package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/remotepilot/daemon/internal/agent"
	"github.com/remotepilot/daemon/internal/task"
)

const defaultTopK = 3

// entry is one persisted (goal, plan, embedding) triple (§3 Memory entry).
type entry struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Plan      task.Plan `json:"plan"`
	Embedding []float32 `json:"embedding"`
}

// Store is the on-disk-backed Semantic Memory: a single JSONL file loaded
// wholesale on construction and rewritten wholesale on every Add (§4.7).
type Store struct {
	path       string
	embedModel string
	client     embedClient
	threshold  float32

	mu      sync.Mutex
	entries []entry
	index   *VectorStore
}

// embedClient is the narrow slice of inference.Client this package needs.
type embedClient interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// NewStore opens path (creating it lazily on first write) and loads any
// entries already present. A corrupt file yields an empty store, logged,
// never a fatal error (§4.7).
func NewStore(path, embedModel string, client embedClient, threshold float32) (*Store, error) {
	if threshold <= 0 {
		threshold = 0.7
	}
	s := &Store{path: path, embedModel: embedModel, client: client, threshold: threshold}

	loaded, err := loadEntries(path)
	if err != nil {
		slog.Warn("memory file corrupt, starting empty", "path", path, "error", err)
		loaded = nil
	}
	s.entries = loaded

	idx, err := NewVectorStore(filepath.Dir(path), s.embedQueryText)
	if err != nil {
		return nil, fmt.Errorf("open memory vector index: %w", err)
	}
	s.index = idx

	ctx := context.Background()
	for _, e := range s.entries {
		if len(e.Embedding) == 0 {
			continue
		}
		if err := s.index.Upsert(ctx, e.ID, e.Embedding, e.Goal); err != nil {
			slog.Warn("failed to re-index memory entry on load", "id", e.ID, "error", err)
		}
	}

	return s, nil
}

// embedQueryText satisfies the VectorStore's Embedder contract for query
// embedding at retrieval time.
func (s *Store) embedQueryText(ctx context.Context, text string) ([]float32, error) {
	return s.client.Embed(ctx, s.embedModel, text)
}

func loadEntries(path string) ([]entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("corrupt memory entry: %w", err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Add embeds goal and appends a (goal, plan, embedding) entry. Entries with
// a null or empty embedding are silently dropped (§3 invariant) — this is
// not treated as an error, since a planner-side embedding outage should
// never fail the task whose success it is recording.
func (s *Store) Add(ctx context.Context, goal string, plan task.Plan) error {
	vec, err := s.client.Embed(ctx, s.embedModel, goal)
	if err != nil || len(vec) == 0 {
		return nil
	}

	e := entry{ID: uuid.NewString(), Goal: goal, Plan: plan, Embedding: vec}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	rewriteErr := s.rewriteLocked()
	s.mu.Unlock()

	if rewriteErr != nil {
		return fmt.Errorf("persist memory entry: %w", rewriteErr)
	}
	return s.index.Upsert(ctx, e.ID, e.Embedding, e.Goal)
}

// rewriteLocked rewrites the entire backing file from s.entries. Caller
// must hold s.mu.
func (s *Store) rewriteLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range s.entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Retrieve returns up to topK entries whose goal embedding exceeds the
// configured cosine-similarity threshold against goal, most similar first.
func (s *Store) Retrieve(ctx context.Context, goal string, topK int) ([]agent.MemoryEntry, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	s.mu.Lock()
	byID := make(map[string]entry, len(s.entries))
	for _, e := range s.entries {
		byID[e.ID] = e
	}
	s.mu.Unlock()

	results, err := s.index.Query(ctx, goal, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve memory: %w", err)
	}

	out := make([]agent.MemoryEntry, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.threshold {
			continue
		}
		e, ok := byID[r.ID]
		if !ok {
			continue
		}
		out = append(out, agent.MemoryEntry{Goal: e.Goal, Plan: e.Plan})
	}
	return out, nil
}
