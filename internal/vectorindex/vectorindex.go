// Package vectorindex implements the HNSW-backed approximate nearest
// neighbor store for summary embeddings plus its keyword-similarity
// fallback twin. TieredVectorStore composes the two so callers never
// branch on a mode flag: a summary lives in exactly one tier at a
// time, and searches degrade to keyword Jaccard whenever embeddings
// are unavailable.
package vectorindex

// Neighbor is one ranked search result.
type Neighbor struct {
	ContextID  string
	Similarity float64
}

// VectorStore is the embedding-keyed capability the dense tier
// provides. The keyword fallback mirrors it with text-keyed variants
// (UpsertText/SearchText); TieredVectorStore composes the two behind
// text-keyed entry points so callers never see the split.
type VectorStore interface {
	// Upsert inserts or replaces the embedding for contextID.
	Upsert(contextID string, embedding []float32) error
	// Search returns up to k neighbors ranked by descending similarity.
	Search(embedding []float32, k int) ([]Neighbor, error)
	// Delete removes contextID if present; it is not an error if absent.
	Delete(contextID string) error
	// Contains reports whether contextID has a live entry.
	Contains(contextID string) bool
	// Count returns the number of live entries.
	Count() int
	// Persist flushes the store's state to disk.
	Persist() error
	// Load restores the store's state from disk, if present.
	Load() error
}

// Config configures the dense index's HNSW parameters and the
// directory layout shared by both tiers.
type Config struct {
	Dimensions     int
	MaxElements    int
	M              int
	EfConstruction int
	EfSearch       int
	BaseDir        string
}
