// Package contextsvc is the orchestrator: it keeps the message store,
// vector index, and relationship graph consistent, and triggers
// summarization once a context accumulates enough unsummarized
// messages.
package contextsvc

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"ctxmemoryd/internal/ctxerr"
	"ctxmemoryd/internal/graph"
	"ctxmemoryd/internal/logging"
	"ctxmemoryd/internal/model"
	"ctxmemoryd/internal/store"
	"ctxmemoryd/internal/summarize"
	"ctxmemoryd/internal/vectorindex"
)

// Config is the subset of the engine's configuration surface the
// orchestrator consults directly.
type Config struct {
	MessageLimitThreshold int
	AutoSummarize         bool
	UseVectorDB           bool
	UseGraphDB            bool
	SimilarityThreshold   float64
}

// Service orchestrates writes, triggers summarization, and maintains
// consistency across the message store, vector index, and graph.
type Service struct {
	cfg        Config
	messages   *store.MessageStore
	vectors    *vectorindex.TieredVectorStore
	graph      *graph.Graph
	summarizer summarize.Summarizer

	sf singleflight.Group
	wg sync.WaitGroup
}

// New constructs a Service over already-initialized stores.
func New(cfg Config, messages *store.MessageStore, vectors *vectorindex.TieredVectorStore, g *graph.Graph, summarizer summarize.Summarizer) *Service {
	return &Service{
		cfg:        cfg,
		messages:   messages,
		vectors:    vectors,
		graph:      g,
		summarizer: summarizer,
	}
}

// ContextView aggregates everything retrieve_context returns.
type ContextView struct {
	ContextID  string
	Messages   []model.Message
	HasSummary bool
	Summary    *model.Summary
}

// AddMessage stamps a timestamp, appends the message durably, updates
// metadata, and — once messagesSinceLastSummary crosses the
// configured threshold — spawns a fire-and-forget background
// summarization task. The append itself is the only part of this
// operation whose failure is surfaced; a metadata write failure after
// a durable append is logged, since the append already succeeded.
func (s *Service) AddMessage(ctx context.Context, contextID string, role model.Role, content string, importance model.Importance, tags []string) error {
	if contextID == "" {
		return fmt.Errorf("%w: contextId must not be empty", ctxerr.InvalidArgument)
	}
	if role != model.RoleUser && role != model.RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ctxerr.InvalidArgument, role)
	}
	if tags == nil {
		tags = []string{}
	}

	msg := model.Message{
		ContextID:  contextID,
		Role:       role,
		Content:    content,
		Timestamp:  model.NowMillis(),
		Importance: importance.Weight(),
		Tags:       tags,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return err
	}

	meta, err := s.messages.LoadMetadata(contextID)
	if err != nil {
		logging.Log.WithError(err).Error("failed to load metadata after durable append")
		return nil
	}
	if meta == nil {
		meta = &model.Metadata{ContextID: contextID, CreatedAt: msg.Timestamp}
	}
	meta.LastActivityAt = msg.Timestamp
	meta.MessagesSinceLastSummary++
	meta.TotalMessageCount++
	if err := s.messages.SaveMetadata(*meta); err != nil {
		logging.Log.WithError(err).Error("failed to persist metadata after durable append")
		return nil
	}

	if s.cfg.AutoSummarize && s.cfg.MessageLimitThreshold > 0 && meta.MessagesSinceLastSummary >= s.cfg.MessageLimitThreshold {
		s.triggerBackgroundSummarize(contextID)
	}
	return nil
}

// triggerBackgroundSummarize is single-flight per contextID: a second
// concurrent trigger coalesces into the already-running task's result
// rather than spawning a duplicate summarization.
func (s *Service) triggerBackgroundSummarize(contextID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err, _ := s.sf.Do(contextID, func() (interface{}, error) {
			_, summarizeErr := s.SummarizeNow(context.Background(), contextID)
			return nil, summarizeErr
		})
		if err != nil {
			logging.Log.WithError(err).WithField("contextId", contextID).Warn("background summarization failed")
		}
	}()
}

// Shutdown waits for in-flight background summarization tasks to
// drain, so none leak past process exit.
func (s *Service) Shutdown() {
	s.wg.Wait()
}

// GetContext returns nil, nil when the context has no metadata.
func (s *Service) GetContext(contextID string) (*ContextView, error) {
	meta, err := s.messages.LoadMetadata(contextID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	messages, err := s.messages.LoadMessages(contextID)
	if err != nil {
		return nil, err
	}
	summary, err := s.messages.LoadSummary(contextID)
	if err != nil {
		return nil, err
	}
	return &ContextView{
		ContextID:  contextID,
		Messages:   messages,
		HasSummary: meta.HasSummary,
		Summary:    summary,
	}, nil
}

// FindSimilar delegates to the vector index.
func (s *Service) FindSimilar(ctx context.Context, query string, limit int) ([]vectorindex.Neighbor, error) {
	if !s.cfg.UseVectorDB {
		return nil, nil
	}
	return s.vectors.Search(ctx, query, limit)
}

// AddRelationship verifies both endpoints exist before delegating to
// the graph.
func (s *Service) AddRelationship(contextID, targetID string, edgeType model.EdgeType, weight float64) (model.Edge, error) {
	if !s.cfg.UseGraphDB {
		return model.Edge{}, fmt.Errorf("%w: graph store is disabled", ctxerr.InvalidArgument)
	}
	srcMeta, err := s.messages.LoadMetadata(contextID)
	if err != nil {
		return model.Edge{}, err
	}
	if srcMeta == nil {
		return model.Edge{}, fmt.Errorf("%w: source context %q does not exist", ctxerr.NotFound, contextID)
	}
	tgtMeta, err := s.messages.LoadMetadata(targetID)
	if err != nil {
		return model.Edge{}, err
	}
	if tgtMeta == nil {
		return model.Edge{}, fmt.Errorf("%w: target context %q does not exist", ctxerr.NotFound, targetID)
	}

	edge, err := s.graph.AddEdge(contextID, targetID, edgeType, weight, nil)
	if err != nil {
		return model.Edge{}, err
	}
	if err := s.graph.Persist(); err != nil {
		logging.Log.WithError(err).Warn("failed to persist graph after add_relationship")
	}
	return edge, nil
}

// GetRelated delegates to the graph.
func (s *Service) GetRelated(contextID string, edgeType *model.EdgeType, dir model.Direction) []string {
	if !s.cfg.UseGraphDB {
		return nil
	}
	return s.graph.Neighbors(contextID, edgeType, dir)
}

// SummarizeNow is the synchronous summarization path: load messages,
// run the summarizer, save the summary, embed and upsert into the
// vector index, reset the unsummarized counter, and create automatic
// SIMILAR edges. A summarization failure leaves metadata untouched.
func (s *Service) SummarizeNow(ctx context.Context, contextID string) (*model.Summary, error) {
	messages, err := s.messages.LoadMessages(contextID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: context %q has no messages to summarize", ctxerr.NotFound, contextID)
	}

	meta, err := s.messages.LoadMetadata(contextID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: context %q has no metadata", ctxerr.NotFound, contextID)
	}

	version := 1
	if existing, err := s.messages.LoadSummary(contextID); err == nil && existing != nil {
		version = existing.Version + 1
	}

	summary, err := s.summarizer.Summarize(contextID, messages, summarize.LevelContext, version)
	if err != nil {
		return nil, err
	}

	if err := s.messages.SaveSummary(summary); err != nil {
		return nil, err
	}

	if s.cfg.UseVectorDB {
		if err := s.vectors.UpsertSummary(ctx, contextID, summary.Text); err != nil {
			logging.Log.WithError(err).WithField("contextId", contextID).Warn("vector index update failed after summarize")
		} else {
			if err := s.vectors.Persist(); err != nil {
				logging.Log.WithError(err).Warn("failed to persist vector index after upsert")
			}
			if s.cfg.UseGraphDB {
				s.createAutoSimilarEdges(ctx, contextID, summary.Text)
			}
		}
	}

	now := model.NowMillis()
	meta.MessagesSinceLastSummary = 0
	meta.HasSummary = true
	meta.LastSummarizedAt = &now
	if err := s.messages.SaveMetadata(*meta); err != nil {
		logging.Log.WithError(err).Error("failed to persist metadata after summarize")
	}

	return &summary, nil
}

// createAutoSimilarEdges queries the vector index for the top-5
// neighbors of the just-computed summary and records a SIMILAR edge
// to every neighbor above the configured similarity threshold.
func (s *Service) createAutoSimilarEdges(ctx context.Context, contextID, summaryText string) {
	neighbors, err := s.vectors.Search(ctx, summaryText, 6)
	if err != nil {
		logging.Log.WithError(err).Warn("neighbor search failed during automatic edge creation")
		return
	}

	created := 0
	for _, n := range neighbors {
		if created >= 5 {
			break
		}
		if n.ContextID == contextID {
			continue
		}
		if n.Similarity <= s.cfg.SimilarityThreshold {
			continue
		}
		if _, err := s.graph.AddEdge(contextID, n.ContextID, model.EdgeSimilar, n.Similarity, nil); err != nil {
			logging.Log.WithError(err).Warn("failed to add automatic SIMILAR edge")
			continue
		}
		created++
	}
	if created > 0 {
		if err := s.graph.Persist(); err != nil {
			logging.Log.WithError(err).Warn("failed to persist graph after automatic edge creation")
		}
	}
}

// Delete cascades across all three stores: messages/metadata/summary,
// vector entry, and every edge with this context as an endpoint.
func (s *Service) Delete(contextID string) (bool, error) {
	existed, err := s.messages.Delete(contextID)
	if err != nil {
		return existed, err
	}

	if s.cfg.UseVectorDB {
		if err := s.vectors.Delete(contextID); err != nil {
			logging.Log.WithError(err).Warn("vector index delete failed during context deletion")
		} else if err := s.vectors.Persist(); err != nil {
			logging.Log.WithError(err).Warn("failed to persist vector index after deletion")
		}
	}
	if s.cfg.UseGraphDB {
		s.graph.Remove(contextID)
		if err := s.graph.Persist(); err != nil {
			logging.Log.WithError(err).Warn("failed to persist graph after deletion")
		}
	}
	return existed, nil
}
