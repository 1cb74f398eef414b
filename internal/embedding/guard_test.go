package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxmemoryd/internal/config"
)

func TestNewWithoutHostReturnsDeterministic(t *testing.T) {
	e := New(config.EmbeddingConfig{Dimensions: 32})
	assert.Equal(t, "deterministic-trigram", e.Name())
}

func TestGuardedEmbedderMarksPermanentlyUnavailableOnUnreachableHost(t *testing.T) {
	e := New(config.EmbeddingConfig{
		Host:       "http://127.0.0.1:0",
		Path:       "/embeddings",
		Model:      "test-model",
		Dimensions: 8,
		TimeoutSec: 1,
	})

	_, err := e.Embed(context.Background(), "first call")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = e.Embed(context.Background(), "second call")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGuardedEmbedderSucceedsAgainstFakeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3,0.4]}]}`))
	}))
	defer srv.Close()

	e := New(config.EmbeddingConfig{
		Host:       srv.URL,
		Path:       "/v1/embeddings",
		Model:      "test-model",
		Dimensions: 4,
		TimeoutSec: 5,
	})

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestGuardedEmbedderRejectsCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	e := New(config.EmbeddingConfig{
		Host:       srv.URL,
		Path:       "/v1/embeddings",
		Dimensions: 4,
		TimeoutSec: 5,
	})

	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
