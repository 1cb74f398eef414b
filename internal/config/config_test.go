package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().MessageLimitThreshold, cfg.MessageLimitThreshold)
	assert.True(t, cfg.AutoSummarize)
	assert.DirExists(t, cfg.ContextDir)
}

func TestLoadParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
context_dir: `+filepath.Join(dir, "data")+`
similarity_threshold: 0.8
vector_db:
  dimensions: 128
embeddings:
  dimensions: 128
  host: https://example.invalid
  model: test-model
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.Equal(t, 128, cfg.VectorDB.Dimensions)
	assert.Equal(t, 128, cfg.Embeddings.Dimensions)
	assert.Equal(t, "test-model", cfg.Embeddings.Model)
	assert.Equal(t, 16, cfg.VectorDB.M)
	assert.Equal(t, 30, cfg.Embeddings.TimeoutSec)
}

func TestLoadRejectsInvalidSimilarityThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity_threshold: 1.5\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMismatchedEmbeddingDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vector_db:
  dimensions: 256
embeddings:
  dimensions: 128
  host: https://example.invalid
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesApplyAfterFileLoad(t *testing.T) {
	t.Setenv("CTXMEMORY_EMBEDDINGS_API_KEY", "env-secret")
	t.Setenv("CTXMEMORY_API_KEY", "env-api-key")

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Embeddings.APIKey)
	assert.Equal(t, "env-api-key", cfg.APIKey)
}

func TestRedactedBlanksSecrets(t *testing.T) {
	cfg := Config{APIKey: "top-secret"}
	cfg.Embeddings.APIKey = "also-secret"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.APIKey)
	assert.Equal(t, "***", red.Embeddings.APIKey)
	assert.Equal(t, "top-secret", cfg.APIKey, "original must be unmodified")
}

func TestRedactedLeavesEmptySecretsEmpty(t *testing.T) {
	red := Config{}.Redacted()
	assert.Empty(t, red.APIKey)
}
