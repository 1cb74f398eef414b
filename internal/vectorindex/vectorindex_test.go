package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxmemoryd/internal/embedding"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dimensions:     32,
		MaxElements:    100,
		M:              16,
		EfConstruction: 200,
		EfSearch:       100,
		BaseDir:        t.TempDir(),
	}
}

func TestDenseUpsertAndSearchFindsExactMatch(t *testing.T) {
	d := newDenseIndex(testConfig(t))
	emb := embedding.NewDeterministic(32)

	v1, err := emb.Embed(context.Background(), "PostgreSQL replication and write-ahead log")
	require.NoError(t, err)
	v2, err := emb.Embed(context.Background(), "Chocolate chip cookie recipe")
	require.NoError(t, err)

	require.NoError(t, d.Upsert("pg", v1))
	require.NoError(t, d.Upsert("cookies", v2))

	results, err := d.Search(v1, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pg", results[0].ContextID)
	assert.GreaterOrEqual(t, results[0].Similarity, 0.99)
}

func TestDenseUpsertTwiceKeepsOneStableLabel(t *testing.T) {
	d := newDenseIndex(testConfig(t))
	emb := embedding.NewDeterministic(32)

	v1, _ := emb.Embed(context.Background(), "first version")
	v2, _ := emb.Embed(context.Background(), "second version, substantially different text")

	require.NoError(t, d.Upsert("ctx", v1))
	label1 := d.contextToLabel["ctx"]
	require.NoError(t, d.Upsert("ctx", v2))
	label2 := d.contextToLabel["ctx"]

	assert.Equal(t, label1, label2)
	assert.Equal(t, 1, d.Count())

	results, err := d.Search(v2, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ctx", results[0].ContextID)
}

func TestDenseDeleteRemovesFromSearchResults(t *testing.T) {
	d := newDenseIndex(testConfig(t))
	emb := embedding.NewDeterministic(32)
	v1, _ := emb.Embed(context.Background(), "alpha")

	require.NoError(t, d.Upsert("a", v1))
	require.NoError(t, d.Delete("a"))

	assert.False(t, d.Contains("a"))
	assert.Equal(t, 0, d.Count())

	results, err := d.Search(v1, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDensePersistAndLoadRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	d := newDenseIndex(cfg)
	emb := embedding.NewDeterministic(32)
	v1, _ := emb.Embed(context.Background(), "durable content")
	require.NoError(t, d.Upsert("ctx1", v1))
	require.NoError(t, d.Persist())

	reloaded := newDenseIndex(cfg)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.Contains("ctx1"))

	results, err := reloaded.Search(v1, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ctx1", results[0].ContextID)
}

func TestKeywordIndexJaccardSearch(t *testing.T) {
	k := newKeywordIndex(t.TempDir())
	k.UpsertText("pg", "PostgreSQL replication and write-ahead log streaming")
	k.UpsertText("cookies", "Chocolate chip cookie recipe with brown sugar")

	results := k.SearchText("streaming replication lag issue", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "pg", results[0].ContextID)
}

func TestKeywordIndexPersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	k := newKeywordIndex(dir)
	k.UpsertText("ctx", "some distinctive vocabulary here")
	require.NoError(t, k.Persist())

	reloaded := newKeywordIndex(dir)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.Contains("ctx"))
}

func TestTieredStoreUsesDenseWhenEmbedderAvailable(t *testing.T) {
	cfg := testConfig(t)
	store := New(cfg, embedding.NewDeterministic(32), false)

	require.NoError(t, store.UpsertSummary(context.Background(), "pg", "PostgreSQL replication and write-ahead log"))
	require.NoError(t, store.UpsertSummary(context.Background(), "cookies", "Chocolate chip cookie recipe"))

	results, err := store.Search(context.Background(), "streaming replication lag", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pg", results[0].ContextID)
}

func TestTieredStoreFallsBackWhenForced(t *testing.T) {
	cfg := testConfig(t)
	store := New(cfg, embedding.NewDeterministic(32), true)

	require.NoError(t, store.UpsertSummary(context.Background(), "pg", "PostgreSQL replication and write-ahead log"))
	require.NoError(t, store.UpsertSummary(context.Background(), "cookies", "Chocolate chip cookie recipe"))

	assert.Equal(t, 0, store.dense.Count())
	assert.Equal(t, 2, store.fallback.Count())

	results, err := store.Search(context.Background(), "streaming replication lag", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pg", results[0].ContextID)
}

func TestTieredLoadArchivesCorruptDenseIndex(t *testing.T) {
	cfg := testConfig(t)
	vectorsDir := filepath.Join(cfg.BaseDir, "vectors")
	require.NoError(t, os.MkdirAll(vectorsDir, 0o755))
	binPath := filepath.Join(vectorsDir, "vector-index.bin")
	require.NoError(t, os.WriteFile(binPath, []byte("not a gob stream"), 0o644))

	store := New(cfg, embedding.NewDeterministic(32), false)
	require.NoError(t, store.Load())

	assert.NoFileExists(t, binPath)
	assert.FileExists(t, binPath+".corrupt")

	require.NoError(t, store.UpsertSummary(context.Background(), "ctx", "fresh content after recovery"))
	results, err := store.Search(context.Background(), "fresh content after recovery", 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "ctx", results[0].ContextID)
}

func TestTieredStoreDeleteClearsBothTiers(t *testing.T) {
	cfg := testConfig(t)
	store := New(cfg, embedding.NewDeterministic(32), false)
	require.NoError(t, store.UpsertSummary(context.Background(), "ctx", "some summary text"))
	require.NoError(t, store.Delete("ctx"))
	assert.False(t, store.Contains("ctx"))
}
