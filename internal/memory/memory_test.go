package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remotepilot/daemon/internal/task"
)

// fakeEmbedder returns the vector each test maps to a goal text, and nil for
// unmapped text. The tests map related goals to nearby vectors and unrelated
// goals to orthogonal ones so similarity comparisons are meaningful.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, nil
}

func TestStore_AddAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"open notepad and write hello": {1, 0, 0},
		"open notepad and write world": {0.99, 0.05, 0},
	}}

	s, err := NewStore(path, "embed-model", embedder, 0.7)
	require.NoError(t, err)

	plan := task.Plan{{Action: task.ActionHotkey, Value: "win+r"}}
	require.NoError(t, s.Add(context.Background(), "open notepad and write hello", plan))

	results, err := s.Retrieve(context.Background(), "open notepad and write world", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "open notepad and write hello", results[0].Goal)
	require.Equal(t, plan, results[0].Plan)
}

func TestStore_RetrieveBelowThresholdExcluded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"bake a cake":     {1, 0, 0},
		"launch a rocket": {0, 1, 0},
	}}

	s, err := NewStore(path, "embed-model", embedder, 0.9)
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), "bake a cake", task.Plan{}))

	results, err := s.Retrieve(context.Background(), "launch a rocket", 3)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestStore_NullEmbeddingSilentlyDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")

	embedder := &fakeEmbedder{vectors: map[string][]float32{}} // always returns nil
	s, err := NewStore(path, "embed-model", embedder, 0.7)
	require.NoError(t, err)

	require.NoError(t, s.Add(context.Background(), "an unembeddable goal", task.Plan{}))

	data, err := os.ReadFile(path)
	if err == nil {
		require.Empty(t, string(data))
	}
	require.Empty(t, s.entries)
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"install dependencies": {1, 0, 0},
	}}

	s1, err := NewStore(path, "embed-model", embedder, 0.7)
	require.NoError(t, err)
	plan := task.Plan{{Action: task.ActionCommand, Value: "npm install"}}
	require.NoError(t, s1.Add(context.Background(), "install dependencies", plan))

	s2, err := NewStore(path, "embed-model", embedder, 0.7)
	require.NoError(t, err)
	results, err := s2.Retrieve(context.Background(), "install dependencies", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, plan, results[0].Plan)
}

func TestStore_CorruptFileYieldsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))

	s, err := NewStore(path, "embed-model", &fakeEmbedder{}, 0.7)
	require.NoError(t, err)
	require.Empty(t, s.entries)
}
