package contextsvc

import "ctxmemoryd/internal/model"

// NetworkHealth summarizes the relationship graph's overall shape:
// how many contexts participate, how densely they are connected, and
// which edge types dominate. Additive beyond the minimum tool set, it
// exists so an agent can sanity-check memory growth without walking
// the whole graph itself.
type NetworkHealth struct {
	NodeCount      int            `json:"nodeCount"`
	EdgeCount      int            `json:"edgeCount"`
	AvgDegree      float64        `json:"avgDegree"`
	EdgeTypeCounts map[string]int `json:"edgeTypeCounts"`
	IsolatedNodes  int            `json:"isolatedNodes"`
}

// NetworkHealth computes graph-wide health metrics. Returns a
// zero-value report (not an error) when the graph store is disabled
// or empty.
func (s *Service) NetworkHealth() NetworkHealth {
	if !s.cfg.UseGraphDB {
		return NetworkHealth{EdgeTypeCounts: map[string]int{}}
	}

	nodes := s.graph.AllNodes()
	edges := s.graph.AllEdges()

	degree := make(map[string]int, len(nodes))
	typeCounts := make(map[string]int)
	for _, e := range edges {
		degree[e.Source]++
		degree[e.Target]++
		typeCounts[string(e.Type)]++
	}

	isolated := 0
	var totalDegree int
	for _, n := range nodes {
		d := degree[n]
		totalDegree += d
		if d == 0 {
			isolated++
		}
	}

	avg := 0.0
	if len(nodes) > 0 {
		avg = float64(totalDegree) / float64(len(nodes))
	}

	return NetworkHealth{
		NodeCount:      len(nodes),
		EdgeCount:      len(edges),
		AvgDegree:      avg,
		EdgeTypeCounts: typeCounts,
		IsolatedNodes:  isolated,
	}
}

// KnowledgeMapNode is one context's position in the knowledge map.
type KnowledgeMapNode struct {
	ContextID string `json:"contextId"`
	Degree    int    `json:"degree"`
}

// KnowledgeMap is a lightweight graph dump suitable for client-side
// visualization or further traversal: every node with its degree, and
// every edge verbatim.
type KnowledgeMap struct {
	Nodes []KnowledgeMapNode `json:"nodes"`
	Edges []model.Edge       `json:"edges"`
}

// KnowledgeMap returns the full graph as nodes-plus-edges. Returns an
// empty map when the graph store is disabled.
func (s *Service) KnowledgeMap() KnowledgeMap {
	if !s.cfg.UseGraphDB {
		return KnowledgeMap{}
	}

	edges := s.graph.AllEdges()
	degree := make(map[string]int)
	for _, e := range edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	nodeIDs := s.graph.AllNodes()
	nodes := make([]KnowledgeMapNode, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		nodes = append(nodes, KnowledgeMapNode{ContextID: id, Degree: degree[id]})
	}

	return KnowledgeMap{Nodes: nodes, Edges: edges}
}
