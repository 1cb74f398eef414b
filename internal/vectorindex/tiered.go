package vectorindex

import (
	"context"
	"errors"
	"sync"

	"ctxmemoryd/internal/ctxerr"
	"ctxmemoryd/internal/embedding"
	"ctxmemoryd/internal/logging"
)

// TieredVectorStore composes the dense (ANN) tier and the keyword
// fallback tier behind one capability, eliminating the scattered
// "if fallbackMode" branches a single mode flag would otherwise
// require: each tier is a concrete VectorStore-shaped implementation
// and this type decides which one a given summary lives in.
type TieredVectorStore struct {
	embedder embedding.Embedder
	dense    *denseIndex
	fallback *keywordIndex

	// forceFallback is the explicit test-mode flag: keyword-only
	// similarity regardless of embedder availability.
	forceFallback bool

	mu      sync.Mutex
	inDense map[string]struct{}
}

// New constructs a TieredVectorStore. forceFallback pins the store to
// keyword mode even when embedder is available, for tests and
// explicit degraded-mode runs.
func New(cfg Config, embedder embedding.Embedder, forceFallback bool) *TieredVectorStore {
	return &TieredVectorStore{
		embedder:      embedder,
		dense:         newDenseIndex(cfg),
		fallback:      newKeywordIndex(cfg.BaseDir),
		forceFallback: forceFallback,
		inDense:       make(map[string]struct{}),
	}
}

// Load restores both tiers from disk. A corrupt dense index degrades
// to fallback-only rather than failing the whole store: the bad files
// are archived with a .corrupt suffix and the engine keeps serving out
// of the keyword tier.
func (t *TieredVectorStore) Load() error {
	if err := t.fallback.Load(); err != nil {
		return err
	}
	if err := t.dense.Load(); err != nil {
		if errors.Is(err, ctxerr.IndexCorrupt) {
			logging.Log.WithError(err).Error("vector index corrupt, archiving and continuing in keyword fallback mode")
			t.dense.archiveCorrupt()
			return nil
		}
		return err
	}
	t.mu.Lock()
	for contextID := range t.dense.contextToLabel {
		t.inDense[contextID] = struct{}{}
	}
	t.mu.Unlock()
	return nil
}

// Persist flushes both tiers.
func (t *TieredVectorStore) Persist() error {
	if err := t.dense.Persist(); err != nil {
		return err
	}
	return t.fallback.Persist()
}

// UpsertSummary embeds text and stores it under contextID. If the
// embedder is unavailable (or forceFallback is set), the summary text
// is stored in the keyword tier and any older dense entry for
// contextID is dropped; a later successful embedding moves the entry
// back into the dense tier and removes the keyword entry. Nothing is
// kept in the dense tier for a keyword-only entry, so while the dense
// tier is non-empty and the embedder is available, Search does not
// return keyword-tier entries.
func (t *TieredVectorStore) UpsertSummary(ctx context.Context, contextID, text string) error {
	if !t.forceFallback {
		vec, err := t.embedder.Embed(ctx, text)
		if err == nil {
			if err := t.dense.Upsert(contextID, vec); err != nil {
				return err
			}
			t.mu.Lock()
			t.inDense[contextID] = struct{}{}
			t.mu.Unlock()
			t.fallback.Delete(contextID)
			return nil
		}
		if !errors.Is(err, embedding.ErrUnavailable) {
			return err
		}
		logging.Log.WithField("contextId", contextID).Warn("embedder unavailable, storing summary in fallback tier")
	}

	t.fallback.UpsertText(contextID, text)
	if err := t.dense.Delete(contextID); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.inDense, contextID)
	t.mu.Unlock()
	return nil
}

// Search embeds queryText and searches the dense tier; if the
// embedder is unavailable or the dense tier is empty, it falls back
// to keyword search over the same query text.
func (t *TieredVectorStore) Search(ctx context.Context, queryText string, k int) ([]Neighbor, error) {
	if !t.forceFallback && t.dense.Count() > 0 {
		vec, err := t.embedder.Embed(ctx, queryText)
		if err == nil {
			return t.dense.Search(vec, k)
		}
		if !errors.Is(err, embedding.ErrUnavailable) {
			return nil, err
		}
	}
	return t.fallback.SearchText(queryText, k), nil
}

// Delete removes contextID from whichever tier holds it.
func (t *TieredVectorStore) Delete(contextID string) error {
	if err := t.dense.Delete(contextID); err != nil {
		return err
	}
	t.fallback.Delete(contextID)
	t.mu.Lock()
	delete(t.inDense, contextID)
	t.mu.Unlock()
	return nil
}

// Contains reports whether contextID has a live entry in either tier.
func (t *TieredVectorStore) Contains(contextID string) bool {
	return t.dense.Contains(contextID) || t.fallback.Contains(contextID)
}

// Count returns the combined live entry count across both tiers.
func (t *TieredVectorStore) Count() int {
	return t.dense.Count() + t.fallback.Count()
}
