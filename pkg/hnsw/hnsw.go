// Package hnsw implements a Hierarchical Navigable Small World graph index
// for approximate nearest-neighbor search over float32 vectors.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/vecring/vecring/pkg/distance"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config configures a new [Index].
type Config struct {
	// M is the maximum number of connections a node's adjacency list may
	// hold once pruned. Layer 0 allows 2*M (M_max0); higher layers allow M.
	// Higher values improve recall but increase memory usage and insertion
	// time. Default: 16.
	M int

	// EfConstruction is the size of the dynamic candidate list explored
	// while building each layer of the graph during insertion. Higher
	// values produce a higher-quality graph at the cost of slower
	// insertion. Default: 200.
	EfConstruction int
}

func (c *Config) setDefaults() {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
}

// maxConns returns m_max, the pruning threshold at the given layer.
// Layer 0 allows 2*M (M_max0); higher layers allow M.
func (c *Config) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

// ---------------------------------------------------------------------------
// Internal priority-queue types for beam search
// ---------------------------------------------------------------------------

// distItem pairs a node id with its distance to a query vector.
type distItem struct {
	id   uint32
	dist float32
}

// minDistHeap is a min-heap ordered by distance (closest first).
type minDistHeap []distItem

func (h minDistHeap) Len() int           { return len(h) }
func (h minDistHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *minDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxDistHeap is a max-heap ordered by distance (farthest first).
type maxDistHeap []distItem

func (h maxDistHeap) Len() int           { return len(h) }
func (h maxDistHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *maxDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// node is a single vector in the HNSW graph, keyed directly by its id.
type node struct {
	vector  []float32  // the vector data; length is not validated against other nodes
	friends [][]uint32 // friends[layer] = neighbor ids at that layer, len == level+1
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// Result is a single nearest-neighbor match.
type Result struct {
	ID       uint32
	Distance float32
}

// ---------------------------------------------------------------------------
// Index
// ---------------------------------------------------------------------------

// Index is a Hierarchical Navigable Small World graph.
//
// It provides approximate nearest-neighbor search with O(log n) query time
// by organizing vectors into a multi-layer navigable graph. Higher layers
// contain exponentially fewer nodes and act as express lanes for fast
// traversal; layer 0 contains every node for precise local search.
//
// Vectors are identified directly by caller-supplied uint32 id. The index
// does not record or enforce a vector dimension: mixing vector lengths
// within one index is an unchecked precondition and corrupts results rather
// than erroring.
//
// All methods are safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	cfg        Config
	nodes      map[uint32]*node
	entryPoint uint32
	hasEntry   bool
	maxLayer   int
	levelMul   float64 // 1/ln(M), for random level generation
}

// New creates an empty HNSW index with the given configuration.
func New(cfg Config) *Index {
	cfg.setDefaults()
	return &Index{
		cfg:      cfg,
		nodes:    make(map[uint32]*node),
		levelMul: 1.0 / math.Log(float64(cfg.M)),
	}
}

// Len returns the number of vectors in the index.
func (h *Index) Len() int {
	h.mu.RLock()
	n := len(h.nodes)
	h.mu.RUnlock()
	return n
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

// Insert adds a vector under id, or replaces it if id is already present.
//
// Re-inserting an id overwrites its vector and graph placement; its prior
// adjacency entries in other nodes' friend lists are left dangling until
// naturally pruned by later insertions. Callers should not rely on
// replacement semantics beyond "the id now resolves to the new vector."
//
// Insert has no partial-failure mode: it either fully links the new node
// into every layer from min(level, maxLayer) down to 0, or (only possible
// on the very first insert) simply becomes the entry point.
func (h *Index) Insert(id uint32, vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	h.mu.Lock()
	defer h.mu.Unlock()

	level := h.randomLevel()
	nd := &node{vector: vec, friends: make([][]uint32, level+1)}
	h.nodes[id] = nd

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLayer = level
		return
	}

	// Phase 1: greedy descent from the top layer down to level+1. Above the
	// new node's own level we only ever track the single closest node.
	cur := h.entryPoint
	curDist := distance.Euclidean(vec, h.nodes[cur].vector)
	cur, _ = h.greedyDescend(vec, cur, curDist, h.maxLayer, level)

	// Phase 2: at each layer from min(level, maxLayer) down to 0, expand a
	// beam search, select this node's neighbors, and connect bidirectionally.
	topInsert := min(level, h.maxLayer)

	curEntry := cur
	for lev := topInsert; lev >= 0; lev-- {
		candidates := h.searchLayer(vec, []uint32{curEntry}, h.cfg.EfConstruction, lev)

		neighbors := h.selectClosest(vec, candidates, h.cfg.M)
		nd.friends[lev] = neighbors

		mMax := h.cfg.maxConns(lev)
		for _, nID := range neighbors {
			nn := h.nodes[nID]
			if nn == nil || lev >= len(nn.friends) {
				continue
			}
			nn.friends[lev] = append(nn.friends[lev], id)
			if len(nn.friends[lev]) > mMax {
				nn.friends[lev] = h.selectClosest(nn.vector, nn.friends[lev], mMax)
			}
		}

		if len(candidates) > 0 {
			curEntry = h.closestOf(vec, candidates)
		}
	}

	if level > h.maxLayer {
		h.maxLayer = level
		h.entryPoint = id
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// Search returns up to k nearest vectors to the query, ordered by ascending
// distance (closest first). The effective candidate-list size used during
// the layer-0 expansion is max(EfConstruction, k).
func (h *Index) Search(query []float32, k int) []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 || k <= 0 {
		return nil
	}

	ef := h.cfg.EfConstruction
	if k > ef {
		ef = k
	}

	cur := h.entryPoint
	curDist := distance.Euclidean(query, h.nodes[cur].vector)
	cur, _ = h.greedyDescend(query, cur, curDist, h.maxLayer, 0)

	candidateIDs := h.searchLayer(query, []uint32{cur}, ef, 0)

	results := make([]Result, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		nd := h.nodes[id]
		if nd == nil {
			continue
		}
		results = append(results, Result{ID: id, Distance: distance.Euclidean(query, nd.vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// randomLevel draws a layer for a new node from an exponential distribution:
// P(level >= l) = exp(-l * ln(M)). Most nodes land on layer 0; higher layers
// are exponentially rarer.
func (h *Index) randomLevel() int {
	r := max(rand.Float64(), math.SmallestNonzeroFloat64)
	level := int(-math.Log(r) * h.levelMul)
	if level > 31 {
		level = 31 // safety cap against pathological float draws
	}
	return level
}

// greedyDescend walks from cur down through layers from..toExclusive+1,
// repeatedly moving to a strictly closer neighbor at the current layer until
// none improves, then dropping to the next lower layer. It implements the
// single-best (ef=1) zoom-in used both before insertion and before query.
func (h *Index) greedyDescend(query []float32, cur uint32, curDist float32, from, toExclusive int) (uint32, float32) {
	for lev := from; lev > toExclusive; lev-- {
		changed := true
		for changed {
			changed = false
			nd := h.nodes[cur]
			if nd == nil || lev >= len(nd.friends) {
				break
			}
			for _, fID := range nd.friends[lev] {
				fn := h.nodes[fID]
				if fn == nil {
					continue
				}
				d := distance.Euclidean(query, fn.vector)
				if d < curDist {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}
	return cur, curDist
}

// searchLayer performs a beam search on a single layer, starting from the
// given entry points. It returns up to ef ids closest to the query vector.
func (h *Index) searchLayer(query []float32, entryPoints []uint32, ef int, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)

	var candidates minDistHeap
	var results maxDistHeap

	for _, ep := range entryPoints {
		nd, ok := h.nodes[ep]
		if !ok {
			continue
		}
		visited[ep] = struct{}{}
		d := distance.Euclidean(query, nd.vector)
		heap.Push(&candidates, distItem{id: ep, dist: d})
		heap.Push(&results, distItem{id: ep, dist: d})
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(distItem)

		// If the closest unvisited candidate is farther than the farthest
		// result and we already have ef results, stop expanding.
		if results.Len() >= ef && closest.dist > results[0].dist {
			break
		}

		nd := h.nodes[closest.id]
		if nd == nil || layer >= len(nd.friends) {
			continue
		}

		for _, fID := range nd.friends[layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			fn := h.nodes[fID]
			if fn == nil {
				continue
			}

			d := distance.Euclidean(query, fn.vector)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, distItem{id: fID, dist: d})
				heap.Push(&results, distItem{id: fID, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].id
	}
	return out
}

// selectClosest returns up to maxN ids from candidates closest to ref.
func (h *Index) selectClosest(ref []float32, candidates []uint32, maxN int) []uint32 {
	if len(candidates) <= maxN {
		out := make([]uint32, len(candidates))
		copy(out, candidates)
		return out
	}

	type scored struct {
		id   uint32
		dist float32
	}
	items := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		nd := h.nodes[id]
		if nd == nil {
			continue
		}
		items = append(items, scored{id: id, dist: distance.Euclidean(ref, nd.vector)})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].dist < items[j].dist
	})
	if len(items) > maxN {
		items = items[:maxN]
	}

	out := make([]uint32, len(items))
	for i := range items {
		out[i] = items[i].id
	}
	return out
}

// closestOf returns the id in candidates with the smallest distance to ref.
func (h *Index) closestOf(ref []float32, candidates []uint32) uint32 {
	best := candidates[0]
	bestDist := distance.Euclidean(ref, h.nodes[best].vector)
	for _, id := range candidates[1:] {
		d := distance.Euclidean(ref, h.nodes[id].vector)
		if d < bestDist {
			best = id
			bestDist = d
		}
	}
	return best
}
