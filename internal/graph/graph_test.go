package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxmemoryd/internal/model"
)

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New(t.TempDir())
	_, err := g.AddEdge("a", "a", model.EdgeSimilar, 0.5, nil)
	assert.Error(t, err)
}

func TestAddEdgeRejectsUnknownType(t *testing.T) {
	g := New(t.TempDir())
	_, err := g.AddEdge("a", "b", model.EdgeType("BOGUS"), 0.5, nil)
	assert.Error(t, err)
}

func TestAddEdgeRejectsOutOfRangeWeight(t *testing.T) {
	g := New(t.TempDir())
	_, err := g.AddEdge("a", "b", model.EdgeSimilar, 1.5, nil)
	assert.Error(t, err)
}

func TestNeighborsSymmetryBetweenInAndOut(t *testing.T) {
	g := New(t.TempDir())
	_, err := g.AddEdge("s", "t", model.EdgeSimilar, 0.8, nil)
	require.NoError(t, err)

	out := g.Neighbors("s", nil, model.DirectionOut)
	in := g.Neighbors("t", nil, model.DirectionIn)
	assert.Contains(t, out, "t")
	assert.Contains(t, in, "s")
}

func TestReAddingEdgeUpdatesInPlaceAndKeepsCreatedAt(t *testing.T) {
	g := New(t.TempDir())
	first, err := g.AddEdge("s", "t", model.EdgeSimilar, 0.5, nil)
	require.NoError(t, err)

	second, err := g.AddEdge("s", "t", model.EdgeReferences, 0.9, map[string]interface{}{"note": "updated"})
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, model.EdgeReferences, second.Type)
	assert.Equal(t, 0.9, second.Weight)

	edges := g.Edges("s")
	require.Len(t, edges, 1)
	assert.Equal(t, model.EdgeReferences, edges[0].Type)
}

func TestShortestPathFindsDirectAndMultiHop(t *testing.T) {
	g := New(t.TempDir())
	_, _ = g.AddEdge("a", "b", model.EdgeSimilar, 0.5, nil)
	_, _ = g.AddEdge("b", "c", model.EdgeSimilar, 0.5, nil)

	path := g.ShortestPath("a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, path)
}

func TestShortestPathTraversesAgainstEdgeDirection(t *testing.T) {
	g := New(t.TempDir())
	_, _ = g.AddEdge("a", "b", model.EdgeSimilar, 0.5, nil)

	path := g.ShortestPath("b", "a")
	assert.Equal(t, []string{"b", "a"}, path)
}

func TestShortestPathReturnsNilWhenDisconnected(t *testing.T) {
	g := New(t.TempDir())
	_, _ = g.AddEdge("a", "b", model.EdgeSimilar, 0.5, nil)
	_, _ = g.AddEdge("x", "y", model.EdgeSimilar, 0.5, nil)

	assert.Nil(t, g.ShortestPath("a", "y"))
}

func TestShortestPathReturnsNilForUnknownNode(t *testing.T) {
	g := New(t.TempDir())
	assert.Nil(t, g.ShortestPath("missing", "also-missing"))
}

func TestRemoveDeletesAllIncidentEdges(t *testing.T) {
	g := New(t.TempDir())
	_, _ = g.AddEdge("a", "b", model.EdgeSimilar, 0.5, nil)
	_, _ = g.AddEdge("c", "a", model.EdgeSimilar, 0.5, nil)

	g.Remove("a")

	assert.Empty(t, g.Edges("a"))
	assert.NotContains(t, g.Neighbors("b", nil, model.DirectionIn), "a")
	assert.NotContains(t, g.Neighbors("c", nil, model.DirectionOut), "a")
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)
	_, err := g.AddEdge("a", "b", model.EdgeSimilar, 0.75, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, g.Persist())
	assert.FileExists(t, filepath.Join(dir, "graph-data.json"))

	reloaded := New(dir)
	require.NoError(t, reloaded.Load())
	edges := reloaded.Edges("a")
	require.Len(t, edges, 1)
	assert.Equal(t, "b", edges[0].Target)
	assert.Equal(t, 0.75, edges[0].Weight)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	g := New(t.TempDir())
	assert.NoError(t, g.Load())
}
