// Command ctxmemoryd runs the context memory engine: a conversational
// memory server for AI agents exposed over a stdio tool protocol, with
// an optional HTTP side-channel for health and info.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ctxmemoryd/internal/config"
	"ctxmemoryd/internal/contextsvc"
	"ctxmemoryd/internal/embedding"
	"ctxmemoryd/internal/graph"
	"ctxmemoryd/internal/logging"
	"ctxmemoryd/internal/store"
	"ctxmemoryd/internal/summarize"
	"ctxmemoryd/internal/vectorindex"
	"ctxmemoryd/internal/version"
)

func main() {
	os.Exit(run())
}

// run builds the engine and serves the stdio tool protocol until a
// termination signal arrives. It returns the process exit code rather
// than calling os.Exit directly, so deferred cleanup always executes.
func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.WithError(err).Error("failed to load configuration")
		return 1
	}

	svc, vectors, g, err := buildService(cfg)
	if err != nil {
		logging.Log.WithError(err).Error("failed to initialize engine")
		return 1
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "ctxmemoryd", Version: version.Version}, nil)
	toolNames := registerTools(server, svc)

	var httpSrv *httpServer
	if cfg.EnableHTTPServer {
		httpSrv = newHTTPServer(cfg, toolNames)
		httpSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Run(ctx, &mcp.StdioTransport{})
	}()

	select {
	case <-ctx.Done():
		logging.Log.Info("shutdown signal received, draining background work")
	case err := <-serveErr:
		if err != nil && ctx.Err() == nil {
			logging.Log.WithError(err).Error("mcp server exited unexpectedly")
			return 1
		}
	}

	svc.Shutdown()
	if httpSrv != nil {
		httpSrv.Stop()
	}
	if err := vectors.Persist(); err != nil {
		logging.Log.WithError(err).Warn("failed to persist vector index on shutdown")
	}
	if err := g.Persist(); err != nil {
		logging.Log.WithError(err).Warn("failed to persist graph on shutdown")
	}

	logging.Log.Info("ctxmemoryd stopped")
	return 0
}

// buildService wires the message store, vector index, relationship
// graph, and summarizer into a Service, restoring any persisted state
// found under cfg.ContextDir.
func buildService(cfg *config.Config) (*contextsvc.Service, *vectorindex.TieredVectorStore, *graph.Graph, error) {
	messages := store.New(cfg.ContextDir)

	embedder := embedding.New(cfg.Embeddings)
	vecCfg := vectorindex.Config{
		Dimensions:     cfg.VectorDB.Dimensions,
		MaxElements:    cfg.VectorDB.MaxElements,
		M:              cfg.VectorDB.M,
		EfConstruction: cfg.VectorDB.EfConstruction,
		EfSearch:       cfg.VectorDB.EfSearch,
		BaseDir:        cfg.ContextDir,
	}
	vectors := vectorindex.New(vecCfg, embedder, cfg.FallbackMode)
	if err := vectors.Load(); err != nil {
		logging.Log.WithError(err).Warn("vector index failed to load, continuing in fallback mode")
	}

	g := graph.New(cfg.ContextDir)
	if err := g.Load(); err != nil {
		return nil, nil, nil, fmt.Errorf("load relationship graph: %w", err)
	}

	svcCfg := contextsvc.Config{
		MessageLimitThreshold: cfg.MessageLimitThreshold,
		AutoSummarize:         cfg.AutoSummarize,
		UseVectorDB:           cfg.UseVectorDB,
		UseGraphDB:            cfg.UseGraphDB,
		SimilarityThreshold:   cfg.SimilarityThreshold,
	}
	svc := contextsvc.New(svcCfg, messages, vectors, g, summarize.NewExtractive())
	return svc, vectors, g, nil
}
