package vectorindex

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"ctxmemoryd/internal/ctxerr"
	"ctxmemoryd/internal/logging"
)

// denseIndex is the primary HNSW-backed tier. It maintains its own
// dense uint32 label allocator in front of github.com/coder/hnsw's
// Graph, since the library keys nodes by a caller-chosen comparable
// type rather than an opaque label: the stable-label /
// markDelete-then-reinsert replacement behavior lives at this layer
// regardless of what the underlying library calls its keys.
var _ VectorStore = (*denseIndex)(nil)

type denseIndex struct {
	mu sync.RWMutex

	cfg   Config
	graph *hnsw.Graph[int]

	nextLabel      uint32
	contextToLabel map[string]uint32
	labelToContext map[uint32]string
	vectors        map[uint32][]float32

	deletedCount int
}

func newDenseIndex(cfg Config) *denseIndex {
	g := hnsw.NewGraph[int]()
	if cfg.M > 0 {
		g.M = cfg.M
	}
	if cfg.EfSearch > 0 {
		g.EfSearch = cfg.EfSearch
	}
	g.Distance = hnsw.CosineDistance
	return &denseIndex{
		cfg:            cfg,
		graph:          g,
		nextLabel:      1,
		contextToLabel: make(map[string]uint32),
		labelToContext: make(map[uint32]string),
		vectors:        make(map[uint32][]float32),
	}
}

func (d *denseIndex) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.contextToLabel)
}

func (d *denseIndex) Contains(contextID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.contextToLabel[contextID]
	return ok
}

// Upsert allocates a label on first insert, or on update runs
// markDelete(oldLabel)+addPoint(newEmbedding, sameLabel) since the
// underlying graph has no in-place replacement; reusing the label
// keeps it referentially stable across updates.
func (d *denseIndex) Upsert(contextID string, embedding []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if label, ok := d.contextToLabel[contextID]; ok {
		if len(d.contextToLabel) == 1 {
			// Deleting the graph's only node leaves its layers empty, and
			// hnsw's Add cannot insert into that state: start a fresh graph.
			g := hnsw.NewGraph[int]()
			if d.cfg.M > 0 {
				g.M = d.cfg.M
			}
			if d.cfg.EfSearch > 0 {
				g.EfSearch = d.cfg.EfSearch
			}
			g.Distance = hnsw.CosineDistance
			d.graph = g
		} else {
			d.graph.Delete(int(label))
		}
		d.graph.Add(hnsw.MakeNode(int(label), embedding))
		d.vectors[label] = embedding
		return nil
	}

	label := d.nextLabel
	d.nextLabel++
	d.graph.Add(hnsw.MakeNode(int(label), embedding))
	d.contextToLabel[contextID] = label
	d.labelToContext[label] = contextID
	d.vectors[label] = embedding
	return nil
}

// Search runs searchKnn for k' = min(k, currentCount), maps labels
// back to context ids, drops any label whose mapping was deleted
// (a stale hit against the graph's soft-deleted nodes), converts
// distance to similarity, and drops non-positive similarities.
func (d *denseIndex) Search(embedding []float32, k int) ([]Neighbor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	live := len(d.contextToLabel)
	if live == 0 {
		return nil, nil
	}
	kPrime := k
	if kPrime > live {
		kPrime = live
	}
	if kPrime <= 0 {
		return nil, nil
	}

	nodes := d.graph.Search(embedding, kPrime)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		label := uint32(n.Key)
		contextID, ok := d.labelToContext[label]
		if !ok {
			continue
		}
		sim := cosineSimilarity(embedding, n.Value)
		if sim <= 0 {
			continue
		}
		out = append(out, Neighbor{ContextID: contextID, Similarity: sim})
	}
	sortNeighborsDesc(out)
	return out, nil
}

// Delete soft-deletes a context's node and, when the deleted fraction
// exceeds 25% of the live count, rebuilds the index from scratch
// under fresh labels.
func (d *denseIndex) Delete(contextID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	label, ok := d.contextToLabel[contextID]
	if !ok {
		return nil
	}
	d.graph.Delete(int(label))
	delete(d.contextToLabel, contextID)
	delete(d.labelToContext, label)
	delete(d.vectors, label)
	d.deletedCount++

	if d.deletedCount*4 > len(d.contextToLabel) {
		d.compactLocked()
	}
	return nil
}

func (d *denseIndex) compactLocked() {
	g := hnsw.NewGraph[int]()
	if d.cfg.M > 0 {
		g.M = d.cfg.M
	}
	if d.cfg.EfSearch > 0 {
		g.EfSearch = d.cfg.EfSearch
	}
	g.Distance = hnsw.CosineDistance

	contextToLabel := make(map[string]uint32, len(d.contextToLabel))
	labelToContext := make(map[uint32]string, len(d.contextToLabel))
	vectors := make(map[uint32][]float32, len(d.contextToLabel))

	var next uint32 = 1
	for contextID, oldLabel := range d.contextToLabel {
		vec := d.vectors[oldLabel]
		label := next
		next++
		g.Add(hnsw.MakeNode(int(label), vec))
		contextToLabel[contextID] = label
		labelToContext[label] = contextID
		vectors[label] = vec
	}

	d.graph = g
	d.contextToLabel = contextToLabel
	d.labelToContext = labelToContext
	d.vectors = vectors
	d.nextLabel = next
	d.deletedCount = 0

	logging.Log.WithField("liveCount", len(contextToLabel)).Info("compacted vector index")
}

// persistSnapshot is the gob-encoded payload written to
// vector-index.bin. It is intentionally independent of the
// hnsw.Graph's own internal layout: on load the graph is rebuilt by
// replaying Add for every live vector, which sidesteps any need to
// serialize the library's internal node/layer structures directly.
type persistSnapshot struct {
	NextLabel      uint32
	LabelToContext map[uint32]string
	Vectors        map[uint32][]float32
}

func (d *denseIndex) Persist() error {
	d.mu.RLock()
	snap := persistSnapshot{
		NextLabel:      d.nextLabel,
		LabelToContext: make(map[uint32]string, len(d.labelToContext)),
		Vectors:        make(map[uint32][]float32, len(d.vectors)),
	}
	for label, contextID := range d.labelToContext {
		snap.LabelToContext[label] = contextID
	}
	for label, vec := range d.vectors {
		snap.Vectors[label] = vec
	}
	contextToLabel := make(map[string]uint32, len(d.contextToLabel))
	for contextID, label := range d.contextToLabel {
		contextToLabel[contextID] = label
	}
	d.mu.RUnlock()

	vectorsDir := filepath.Join(d.cfg.BaseDir, "vectors")
	if err := os.MkdirAll(vectorsDir, 0o755); err != nil {
		return fmt.Errorf("%w: create vectors dir: %v", ctxerr.IoError, err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode vector index: %w", err)
	}
	if err := atomicWrite(filepath.Join(vectorsDir, "vector-index.bin"), buf.Bytes()); err != nil {
		return err
	}

	mapData, err := json.MarshalIndent(contextToLabel, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context map: %w", err)
	}
	return atomicWrite(filepath.Join(vectorsDir, "context-map.json"), mapData)
}

// Load restores state from vector-index.bin and context-map.json. A
// missing file is not an error: the index starts empty. A present but
// unreadable file is IndexCorrupt; the caller is expected to archive
// it and fall back to keyword mode.
func (d *denseIndex) Load() error {
	vectorsDir := filepath.Join(d.cfg.BaseDir, "vectors")
	binPath := filepath.Join(vectorsDir, "vector-index.bin")

	data, err := os.ReadFile(binPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read vector index: %v", ctxerr.IoError, err)
	}

	var snap persistSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("%w: decode vector index: %v", ctxerr.IndexCorrupt, err)
	}

	mapPath := filepath.Join(vectorsDir, "context-map.json")
	contextToLabel := make(map[string]uint32, len(snap.LabelToContext))
	if mapData, err := os.ReadFile(mapPath); err == nil {
		if err := json.Unmarshal(mapData, &contextToLabel); err != nil {
			return fmt.Errorf("%w: decode context map: %v", ctxerr.IndexCorrupt, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: read context map: %v", ctxerr.IoError, err)
	} else {
		for label, contextID := range snap.LabelToContext {
			contextToLabel[contextID] = label
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	g := hnsw.NewGraph[int]()
	if d.cfg.M > 0 {
		g.M = d.cfg.M
	}
	if d.cfg.EfSearch > 0 {
		g.EfSearch = d.cfg.EfSearch
	}
	g.Distance = hnsw.CosineDistance
	for label, vec := range snap.Vectors {
		g.Add(hnsw.MakeNode(int(label), vec))
	}

	d.graph = g
	d.nextLabel = snap.NextLabel
	d.labelToContext = snap.LabelToContext
	d.contextToLabel = contextToLabel
	d.vectors = snap.Vectors
	d.deletedCount = 0
	return nil
}

// archiveCorrupt renames the on-disk index files out of the way so a
// later Persist starts clean. Called after Load reports IndexCorrupt;
// the engine keeps serving out of the keyword tier in the meantime.
func (d *denseIndex) archiveCorrupt() {
	vectorsDir := filepath.Join(d.cfg.BaseDir, "vectors")
	for _, name := range []string{"vector-index.bin", "context-map.json"} {
		p := filepath.Join(vectorsDir, name)
		if err := os.Rename(p, p+".corrupt"); err != nil && !os.IsNotExist(err) {
			logging.Log.WithError(err).WithField("file", p).Warn("failed to archive corrupt index file")
		}
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", ctxerr.IoError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename temp file: %v", ctxerr.IoError, err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func sortNeighborsDesc(n []Neighbor) {
	for i := 1; i < len(n); i++ {
		for j := i; j > 0 && n[j].Similarity > n[j-1].Similarity; j-- {
			n[j], n[j-1] = n[j-1], n[j]
		}
	}
}
