// Package graph implements the directed weighted relationship graph
// between contexts: addEdge/neighbors/edges/remove/shortestPath over
// an in-memory adjacency representation, persisted as one JSON
// document after each mutation.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ctxmemoryd/internal/ctxerr"
	"ctxmemoryd/internal/model"
)

// Graph is a directed multigraph restricted so that (source, target)
// is unique: re-adding an edge updates type/weight/metadata in place
// and preserves the original CreatedAt.
type Graph struct {
	mu sync.RWMutex

	// out[source][target] holds the edge attributes for that directed pair.
	out map[string]map[string]model.Edge
	// in[target] is the set of sources with an edge into target.
	in map[string]map[string]struct{}
	// nodes tracks every context that has appeared as an edge endpoint.
	nodes map[string]struct{}

	path string
}

// New constructs an empty Graph that persists to <baseDir>/graph-data.json.
func New(baseDir string) *Graph {
	return &Graph{
		out:   make(map[string]map[string]model.Edge),
		in:    make(map[string]map[string]struct{}),
		nodes: make(map[string]struct{}),
		path:  filepath.Join(baseDir, "graph-data.json"),
	}
}

func (g *Graph) ensureNodeLocked(id string) {
	g.nodes[id] = struct{}{}
	if g.out[id] == nil {
		g.out[id] = make(map[string]model.Edge)
	}
	if g.in[id] == nil {
		g.in[id] = make(map[string]struct{})
	}
}

// AddEdge inserts or updates a directed edge. Nodes are created
// lazily on first edge insertion. source must differ from target.
func (g *Graph) AddEdge(source, target string, edgeType model.EdgeType, weight float64, metadata map[string]interface{}) (model.Edge, error) {
	if source == target {
		return model.Edge{}, fmt.Errorf("%w: source and target must differ (%q)", ctxerr.InvalidArgument, source)
	}
	if !model.ValidEdgeType(edgeType) {
		return model.Edge{}, fmt.Errorf("%w: unknown relationship type %q", ctxerr.InvalidArgument, edgeType)
	}
	if weight < 0 || weight > 1 {
		return model.Edge{}, fmt.Errorf("%w: weight must be within [0,1], got %v", ctxerr.InvalidArgument, weight)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureNodeLocked(source)
	g.ensureNodeLocked(target)

	createdAt := model.NowMillis()
	if existing, ok := g.out[source][target]; ok {
		createdAt = existing.CreatedAt
	}
	edge := model.Edge{
		Source:    source,
		Target:    target,
		Type:      edgeType,
		Weight:    weight,
		CreatedAt: createdAt,
		Metadata:  metadata,
	}
	g.out[source][target] = edge
	g.in[target][source] = struct{}{}
	return edge, nil
}

// Neighbors returns the context ids reachable from ctx in direction
// dir, optionally filtered to a single edge type.
func (g *Graph) Neighbors(ctx string, edgeType *model.EdgeType, dir model.Direction) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	add := func(id string, e model.Edge) {
		if edgeType != nil && e.Type != *edgeType {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if dir == model.DirectionOut || dir == model.DirectionBoth {
		for target, e := range g.out[ctx] {
			add(target, e)
		}
	}
	if dir == model.DirectionIn || dir == model.DirectionBoth {
		for source := range g.in[ctx] {
			add(source, g.out[source][ctx])
		}
	}
	return out
}

// Edges returns every edge touching ctx, as either endpoint.
func (g *Graph) Edges(ctx string) []model.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []model.Edge
	for _, e := range g.out[ctx] {
		out = append(out, e)
	}
	for source := range g.in[ctx] {
		if source == ctx {
			continue
		}
		if e, ok := g.out[source][ctx]; ok {
			out = append(out, e)
		}
	}
	return out
}

// AllNodes returns every context id that has appeared as an edge
// endpoint.
func (g *Graph) AllNodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// AllEdges returns every edge in the graph.
func (g *Graph) AllEdges() []model.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []model.Edge
	for _, targets := range g.out {
		for _, e := range targets {
			out = append(out, e)
		}
	}
	return out
}

// Remove deletes ctx and every edge with ctx as an endpoint.
func (g *Graph) Remove(ctx string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for target := range g.out[ctx] {
		delete(g.in[target], ctx)
	}
	delete(g.out, ctx)

	for source := range g.in[ctx] {
		delete(g.out[source], ctx)
	}
	delete(g.in, ctx)
	delete(g.nodes, ctx)
}

// ShortestPath runs BFS over the undirected union of in/out edges,
// returning the first path found (ties broken by iteration order).
// Returns nil if either endpoint is absent or disconnected.
func (g *Graph) ShortestPath(source, target string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[source]; !ok {
		return nil
	}
	if _, ok := g.nodes[target]; !ok {
		return nil
	}
	if source == target {
		return []string{source}
	}

	visited := map[string]bool{source: true}
	prev := map[string]string{}
	queue := []string{source}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.undirectedNeighborsLocked(cur) {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == target {
				return reconstructPath(prev, source, target)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (g *Graph) undirectedNeighborsLocked(ctx string) []string {
	seen := make(map[string]struct{})
	var out []string
	for t := range g.out[ctx] {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for s := range g.in[ctx] {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func reconstructPath(prev map[string]string, source, target string) []string {
	path := []string{target}
	cur := target
	for cur != source {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// exportDoc is the on-disk representation of the graph, independent
// of its in-memory adjacency layout.
type exportDoc struct {
	Edges []model.Edge `json:"edges"`
}

// Persist writes the graph as a single JSON document.
func (g *Graph) Persist() error {
	g.mu.RLock()
	doc := exportDoc{}
	for _, targets := range g.out {
		for _, e := range targets {
			doc.Edges = append(doc.Edges, e)
		}
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write graph: %v", ctxerr.IoError, err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		return fmt.Errorf("%w: rename graph: %v", ctxerr.IoError, err)
	}
	return nil
}

// Load restores the graph from disk. A missing file is not an error.
func (g *Graph) Load() error {
	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read graph: %v", ctxerr.IoError, err)
	}
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decode graph: %v", ctxerr.IndexCorrupt, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = make(map[string]map[string]model.Edge)
	g.in = make(map[string]map[string]struct{})
	g.nodes = make(map[string]struct{})
	for _, e := range doc.Edges {
		g.ensureNodeLocked(e.Source)
		g.ensureNodeLocked(e.Target)
		g.out[e.Source][e.Target] = e
		g.in[e.Target][e.Source] = struct{}{}
	}
	return nil
}
