package main

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ctxmemoryd/internal/contextsvc"
	"ctxmemoryd/internal/logging"
	"ctxmemoryd/internal/model"
)

// registerTools wires every mandatory and additive tool to svc and
// returns the registered tool names, used by the HTTP side-channel's
// GET /info response.
func registerTools(server *mcp.Server, svc *contextsvc.Service) []string {
	names := make([]string, 0, 10)
	register := func(name string, add func()) {
		add()
		names = append(names, name)
	}

	register("ping", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "ping",
			Description: "Liveness check; always replies pong.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args PingArgs) (*mcp.CallToolResult, any, error) {
			return textResult(`"pong"`, false), nil, nil
		})
	})

	register("add_message", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "add_message",
			Description: "Append a message to a context and durably persist it.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args AddMessageArgs) (*mcp.CallToolResult, any, error) {
			return handleAddMessage(ctx, svc, args), nil, nil
		})
	})

	register("retrieve_context", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "retrieve_context",
			Description: "Fetch a context's messages and current summary, if any.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args RetrieveContextArgs) (*mcp.CallToolResult, any, error) {
			return handleRetrieveContext(svc, args), nil, nil
		})
	})

	register("get_similar_contexts", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_similar_contexts",
			Description: "Return contexts whose summary is semantically similar to a query.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args GetSimilarContextsArgs) (*mcp.CallToolResult, any, error) {
			return handleGetSimilarContexts(ctx, svc, args), nil, nil
		})
	})

	register("add_relationship", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "add_relationship",
			Description: "Record a directed weighted relationship between two contexts.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args AddRelationshipArgs) (*mcp.CallToolResult, any, error) {
			return handleAddRelationship(svc, args), nil, nil
		})
	})

	register("get_related_contexts", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_related_contexts",
			Description: "List context ids related to a given context, optionally filtered by type and direction.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args GetRelatedContextsArgs) (*mcp.CallToolResult, any, error) {
			return handleGetRelatedContexts(svc, args), nil, nil
		})
	})

	register("summarize_context", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "summarize_context",
			Description: "Force an immediate summarization of a context's messages.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args SummarizeContextArgs) (*mcp.CallToolResult, any, error) {
			return handleSummarizeContext(ctx, svc, args), nil, nil
		})
	})

	register("delete_context", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "delete_context",
			Description: "Delete a context and cascade: messages, metadata, summary, vector entry, and all relationships.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args DeleteContextArgs) (*mcp.CallToolResult, any, error) {
			return handleDeleteContext(svc, args), nil, nil
		})
	})

	register("memory_network_health", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "memory_network_health",
			Description: "Report relationship-graph health metrics: node/edge counts, average degree, isolated contexts.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
			return jsonResult(svc.NetworkHealth()), nil, nil
		})
	})

	register("memory_knowledge_map", func() {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "memory_knowledge_map",
			Description: "Export the full relationship graph as nodes and edges.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args NoArgs) (*mcp.CallToolResult, any, error) {
			return jsonResult(svc.KnowledgeMap()), nil, nil
		})
	})

	return names
}

// NoArgs is the parameter type for tools that take no arguments.
type NoArgs struct{}

// PingArgs is the parameter type for ping.
type PingArgs struct{}

// AddMessageArgs is the parameter type for add_message.
type AddMessageArgs struct {
	ContextID  string   `json:"contextId"`
	Message    string   `json:"message"`
	Role       string   `json:"role"`
	Importance string   `json:"importance,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type addMessageResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func handleAddMessage(ctx context.Context, svc *contextsvc.Service, args AddMessageArgs) *mcp.CallToolResult {
	importance := model.Importance(args.Importance)
	if importance == "" {
		importance = model.ImportanceMedium
	}
	err := svc.AddMessage(ctx, args.ContextID, model.Role(args.Role), args.Message, importance, args.Tags)
	if err != nil {
		return jsonErrorResult(addMessageResult{Success: false, Error: err.Error()})
	}
	return jsonResult(addMessageResult{Success: true})
}

// RetrieveContextArgs is the parameter type for retrieve_context.
type RetrieveContextArgs struct {
	ContextID string `json:"contextId"`
}

type retrieveContextResult struct {
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ContextID  string          `json:"contextId,omitempty"`
	Messages   []model.Message `json:"messages,omitempty"`
	HasSummary bool            `json:"hasSummary,omitempty"`
	Summary    *model.Summary  `json:"summary,omitempty"`
}

func handleRetrieveContext(svc *contextsvc.Service, args RetrieveContextArgs) *mcp.CallToolResult {
	view, err := svc.GetContext(args.ContextID)
	if err != nil {
		return jsonErrorResult(retrieveContextResult{Success: false, Error: err.Error()})
	}
	if view == nil {
		return jsonErrorResult(retrieveContextResult{Success: false, Error: "context not found"})
	}
	messages := view.Messages
	if messages == nil {
		messages = []model.Message{}
	}
	return jsonResult(retrieveContextResult{
		Success:    true,
		ContextID:  view.ContextID,
		Messages:   messages,
		HasSummary: view.HasSummary,
		Summary:    view.Summary,
	})
}

// GetSimilarContextsArgs is the parameter type for get_similar_contexts.
type GetSimilarContextsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type similarContextResult struct {
	ContextID  string  `json:"contextId"`
	Similarity float64 `json:"similarity"`
}

func handleGetSimilarContexts(ctx context.Context, svc *contextsvc.Service, args GetSimilarContextsArgs) *mcp.CallToolResult {
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}
	neighbors, err := svc.FindSimilar(ctx, args.Query, limit)
	if err != nil {
		logging.Log.WithError(err).Warn("get_similar_contexts failed")
		return jsonResult([]similarContextResult{})
	}
	out := make([]similarContextResult, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, similarContextResult{ContextID: n.ContextID, Similarity: n.Similarity})
	}
	return jsonResult(out)
}

// AddRelationshipArgs is the parameter type for add_relationship.
type AddRelationshipArgs struct {
	SourceContextID  string  `json:"sourceContextId"`
	TargetContextID  string  `json:"targetContextId"`
	RelationshipType string  `json:"relationshipType"`
	Weight           float64 `json:"weight,omitempty"`
}

type addRelationshipResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Edge    *model.Edge `json:"edge,omitempty"`
}

func handleAddRelationship(svc *contextsvc.Service, args AddRelationshipArgs) *mcp.CallToolResult {
	weight := args.Weight
	if weight <= 0 {
		weight = 0.8
	}
	edge, err := svc.AddRelationship(args.SourceContextID, args.TargetContextID, model.EdgeType(args.RelationshipType), weight)
	if err != nil {
		return jsonErrorResult(addRelationshipResult{Success: false, Error: err.Error()})
	}
	return jsonResult(addRelationshipResult{Success: true, Edge: &edge})
}

// GetRelatedContextsArgs is the parameter type for get_related_contexts.
type GetRelatedContextsArgs struct {
	ContextID        string `json:"contextId"`
	RelationshipType string `json:"relationshipType,omitempty"`
	Direction        string `json:"direction,omitempty"`
}

func handleGetRelatedContexts(svc *contextsvc.Service, args GetRelatedContextsArgs) *mcp.CallToolResult {
	dir := model.Direction(args.Direction)
	if dir == "" {
		dir = model.DirectionBoth
	}
	var edgeType *model.EdgeType
	if args.RelationshipType != "" {
		t := model.EdgeType(args.RelationshipType)
		edgeType = &t
	}
	related := svc.GetRelated(args.ContextID, edgeType, dir)
	if related == nil {
		related = []string{}
	}
	return jsonResult(related)
}

// DeleteContextArgs is the parameter type for delete_context.
type DeleteContextArgs struct {
	ContextID string `json:"contextId"`
}

type deleteContextResult struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

func handleDeleteContext(svc *contextsvc.Service, args DeleteContextArgs) *mcp.CallToolResult {
	deleted, err := svc.Delete(args.ContextID)
	if err != nil {
		return jsonErrorResult(deleteContextResult{Success: false, Deleted: deleted, Error: err.Error()})
	}
	return jsonResult(deleteContextResult{Success: true, Deleted: deleted})
}

// SummarizeContextArgs is the parameter type for summarize_context.
type SummarizeContextArgs struct {
	ContextID string `json:"contextId"`
}

func handleSummarizeContext(ctx context.Context, svc *contextsvc.Service, args SummarizeContextArgs) *mcp.CallToolResult {
	summary, err := svc.SummarizeNow(ctx, args.ContextID)
	if err != nil {
		return textResult(`""`, false)
	}
	return jsonResult(summary)
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return textResult(`{"success":false,"error":"internal encoding error"}`, true)
	}
	return textResult(string(data), false)
}

func jsonErrorResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return textResult(`{"success":false,"error":"internal encoding error"}`, true)
	}
	return textResult(string(data), true)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}
