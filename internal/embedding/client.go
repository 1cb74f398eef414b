package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ctxmemoryd/internal/config"
)

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// httpEmbedder calls a configured OpenAI-compatible embeddings endpoint.
type httpEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewHTTP constructs an Embedder backed by an HTTP embeddings endpoint.
// cfg.Host must be set; callers otherwise get a deterministic embedder
// from NewDeterministic instead.
func NewHTTP(cfg config.EmbeddingConfig) Embedder {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpEmbedder{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (e *httpEmbedder) Name() string   { return "http:" + e.cfg.Model }
func (e *httpEmbedder) Dimension() int { return e.cfg.Dimensions }

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedBatch(ctx, []string{truncate(text)})
	if err != nil {
		return nil, err
	}
	return normalize(out[0]), nil
}

// checkReachability sends a one-input ping request and discards the
// result, used once at startup to decide whether this embedder is
// usable at all.
func (e *httpEmbedder) checkReachability(ctx context.Context) error {
	_, err := e.embedBatch(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func (e *httpEmbedder) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	reqBody, err := json.Marshal(embedReq{Model: e.cfg.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	url := e.cfg.Host + e.cfg.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: embeddings endpoint returned %s: %s", ErrUnavailable, resp.Status, string(body))
	}

	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("parse embedding response (input count %d): %w", len(inputs), err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
