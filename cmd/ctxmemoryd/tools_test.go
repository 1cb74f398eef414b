package main

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxmemoryd/internal/config"
	"ctxmemoryd/internal/contextsvc"
)

func newTestContextService(t *testing.T, threshold int) *contextsvc.Service {
	t.Helper()
	cfg := config.Default()
	cfg.ContextDir = t.TempDir()
	cfg.MessageLimitThreshold = threshold
	svc, _, _, err := buildService(&cfg)
	require.NoError(t, err)
	return svc
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleAddMessageThenRetrieveContext(t *testing.T) {
	svc := newTestContextService(t, 100)
	ctx := context.Background()

	result := handleAddMessage(ctx, svc, AddMessageArgs{ContextID: "c1", Message: "hello", Role: "user"})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"success":true`)

	retr := handleRetrieveContext(svc, RetrieveContextArgs{ContextID: "c1"})
	require.False(t, retr.IsError)
	assert.Contains(t, resultText(t, retr), `"hello"`)
}

func TestHandleAddMessageRejectsUnknownRole(t *testing.T) {
	svc := newTestContextService(t, 100)

	result := handleAddMessage(context.Background(), svc, AddMessageArgs{ContextID: "c1", Message: "hi", Role: "bogus"})
	assert.True(t, result.IsError)
}

func TestHandleRetrieveContextMissingReturnsError(t *testing.T) {
	svc := newTestContextService(t, 100)

	result := handleRetrieveContext(svc, RetrieveContextArgs{ContextID: "missing"})
	assert.True(t, result.IsError)
}

func TestHandleAddRelationshipAndGetRelatedContexts(t *testing.T) {
	svc := newTestContextService(t, 100)
	ctx := context.Background()

	require.False(t, handleAddMessage(ctx, svc, AddMessageArgs{ContextID: "a", Message: "x", Role: "user"}).IsError)
	require.False(t, handleAddMessage(ctx, svc, AddMessageArgs{ContextID: "b", Message: "y", Role: "user"}).IsError)

	rel := handleAddRelationship(svc, AddRelationshipArgs{SourceContextID: "a", TargetContextID: "b", RelationshipType: "SIMILAR"})
	require.False(t, rel.IsError)

	related := handleGetRelatedContexts(svc, GetRelatedContextsArgs{ContextID: "a", Direction: "outgoing"})
	assert.Contains(t, resultText(t, related), `"b"`)
}

func TestHandleGetSimilarContextsReturnsEmptyWhenNoSummaries(t *testing.T) {
	svc := newTestContextService(t, 100)
	result := handleGetSimilarContexts(context.Background(), svc, GetSimilarContextsArgs{Query: "anything"})
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleDeleteContextCascades(t *testing.T) {
	svc := newTestContextService(t, 100)
	ctx := context.Background()

	require.False(t, handleAddMessage(ctx, svc, AddMessageArgs{ContextID: "doomed", Message: "x", Role: "user"}).IsError)

	del := handleDeleteContext(svc, DeleteContextArgs{ContextID: "doomed"})
	require.False(t, del.IsError)
	assert.Contains(t, resultText(t, del), `"deleted":true`)

	retr := handleRetrieveContext(svc, RetrieveContextArgs{ContextID: "doomed"})
	assert.True(t, retr.IsError)
}

func TestHandleDeleteContextUnknownIsNotAnError(t *testing.T) {
	svc := newTestContextService(t, 100)
	del := handleDeleteContext(svc, DeleteContextArgs{ContextID: "never-existed"})
	require.False(t, del.IsError)
	assert.Contains(t, resultText(t, del), `"deleted":false`)
}

func TestHandleSummarizeContextReturnsEmptyStringForMissingContext(t *testing.T) {
	svc := newTestContextService(t, 100)
	result := handleSummarizeContext(context.Background(), svc, SummarizeContextArgs{ContextID: "missing"})
	assert.Equal(t, `""`, resultText(t, result))
}
