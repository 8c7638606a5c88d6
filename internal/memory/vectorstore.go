// Package memory implements the Semantic Memory component (§4.7): a store
// of (goal, plan) pairs retrievable by cosine similarity over goal
// embeddings, consulted by the planner for few-shot context and written to
// on every successful task.
package memory

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "remotepilot_memories"

// VectorResult holds a single vector search result.
type VectorResult struct {
	ID         string
	Similarity float32
	Metadata   map[string]string
}

// VectorStore wraps chromem-go for persistent cosine-similarity storage.
type VectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Embedder produces a fixed-dimensionality vector for a piece of text.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// NewVectorStore opens (or creates) a persistent vector collection under
// dir/vectors. The embedder is invoked only when a query text needs
// embedding; entries are always upserted with a precomputed vector.
func NewVectorStore(dir string, embed Embedder) (*VectorStore, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	return &VectorStore{db: db, collection: col}, nil
}

// Upsert indexes one entry under a precomputed embedding.
func (vs *VectorStore) Upsert(ctx context.Context, id string, embedding []float32, goal string) error {
	return vs.collection.Add(ctx, []string{id}, [][]float32{embedding}, []map[string]string{{"goal": goal}}, []string{goal})
}

// Query performs a cosine-similarity search and returns the top nResults
// entries for queryText, embedding it via the collection's Embedder.
func (vs *VectorStore) Query(ctx context.Context, queryText string, nResults int) ([]VectorResult, error) {
	if vs.collection.Count() == 0 {
		return nil, nil
	}
	if nResults > vs.collection.Count() {
		nResults = vs.collection.Count()
	}

	results, err := vs.collection.Query(ctx, queryText, nResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]VectorResult, len(results))
	for i, r := range results {
		out[i] = VectorResult{ID: r.ID, Similarity: r.Similarity, Metadata: r.Metadata}
	}
	return out, nil
}

// Count returns the number of documents in the vector store.
func (vs *VectorStore) Count() int {
	return vs.collection.Count()
}
