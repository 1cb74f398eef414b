package embedding

import (
	"context"
	"sync"

	"ctxmemoryd/internal/config"
	"ctxmemoryd/internal/logging"
)

// guarded wraps an Embedder so that an HTTP reachability failure is
// checked exactly once, lazily, on first use. Once the underlying
// embedder is found unavailable it stays unavailable for the process
// lifetime: there is no retry, matching the contract that Unavailable
// is a permanent, first-class outcome rather than a transient error to
// retry around.
type guarded struct {
	inner Embedder

	once      sync.Once
	reachable bool
}

// New builds the Embedder the engine should use for cfg: an HTTP
// embedder guarded by a one-shot reachability check when cfg.Host is
// set, or an always-available deterministic embedder otherwise.
func New(cfg config.EmbeddingConfig) Embedder {
	if cfg.Host == "" {
		return NewDeterministic(cfg.Dimensions)
	}
	return &guarded{inner: NewHTTP(cfg)}
}

func (g *guarded) Name() string   { return g.inner.Name() }
func (g *guarded) Dimension() int { return g.inner.Dimension() }

func (g *guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() {
		httpImpl, ok := g.inner.(*httpEmbedder)
		if !ok {
			g.reachable = true
			return
		}
		if err := httpImpl.checkReachability(ctx); err != nil {
			logging.Log.WithError(err).Warn("embedding endpoint unreachable, marking permanently unavailable")
			return
		}
		g.reachable = true
	})
	if !g.reachable {
		return nil, ErrUnavailable
	}
	v, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v, nil
}
