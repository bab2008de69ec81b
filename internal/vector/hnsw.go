package vector

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// HNSWConfig configures [BuildHNSW].
type HNSWConfig struct {
	// M is the maximum number of connections per node per layer (layer 0
	// allows 2*M). Default: 16.
	M int

	// EfConstruction is the candidate list size while building. Default: 200.
	EfConstruction int

	// EfSearch is the candidate list size while searching; raised to k when
	// k is larger. Default: 64.
	EfSearch int

	// Seed drives level assignment. The same vectors and seed always produce
	// the same graph.
	Seed uint64
}

func (c *HNSWConfig) setDefaults() {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 64
	}
}

func (c *HNSWConfig) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

const maxHNSWLevel = 31

// HNSW is a Hierarchical Navigable Small World graph over inner-product
// similarity. Higher layers hold exponentially fewer nodes and act as express
// lanes; layer 0 holds every node.
//
// The graph is built in one pass by [BuildHNSW] and never modified, so Search
// takes no locks.
type HNSW struct {
	cfg      HNSWConfig
	dim      int
	vectors  [][]float32
	levels   []int
	friends  [][][]int32 // friends[slot][layer]
	entry    int32
	maxLevel int
}

var _ Index = (*HNSW)(nil)

// BuildHNSW inserts vectors in order; slot i holds vectors[i].
func BuildHNSW(vectors [][]float32, cfg HNSWConfig) (*HNSW, error) {
	if len(vectors) == 0 {
		return nil, errors.New("cannot build an index from zero vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("cannot build an index from zero-length vectors")
	}
	cfg.setDefaults()

	h := &HNSW{
		cfg:     cfg,
		dim:     dim,
		vectors: make([][]float32, len(vectors)),
		levels:  make([]int, len(vectors)),
		friends: make([][][]int32, len(vectors)),
		entry:   -1,
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	levelMul := 1.0 / math.Log(float64(cfg.M))

	for i, v := range vectors {
		if err := checkDim(len(v), dim); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		copy(vec, v)
		h.insert(int32(i), vec, randomLevel(rng, levelMul))
	}
	return h, nil
}

func (h *HNSW) Len() int { return len(h.vectors) }

func (h *HNSW) Dim() int { return h.dim }

func (h *HNSW) Search(query []float32, k int) ([]Hit, error) {
	k, err := clampK(k, len(h.vectors))
	if err != nil {
		return nil, err
	}
	if err := checkDim(len(query), h.dim); err != nil {
		return nil, err
	}

	cur := h.greedy(query, h.entry, h.maxLevel, 0)
	candidates := h.searchLayer(query, []int32{cur}, max(h.cfg.EfSearch, k), 0)

	var hits []Hit
	if len(candidates) < k {
		// The walk could not reach enough nodes; fall back to a full scan so
		// the result size stays min(k, N).
		hits = make([]Hit, len(h.vectors))
		for i, v := range h.vectors {
			hits[i] = Hit{Slot: i, Score: Dot(query, v)}
		}
	} else {
		hits = make([]Hit, len(candidates))
		for i, c := range candidates {
			hits[i] = Hit{Slot: int(c), Score: Dot(query, h.vectors[c])}
		}
	}
	sortHits(hits)
	return hits[:k], nil
}

func (h *HNSW) insert(slot int32, vec []float32, level int) {
	h.vectors[slot] = vec
	h.levels[slot] = level
	h.friends[slot] = make([][]int32, level+1)

	if h.entry < 0 {
		h.entry = slot
		h.maxLevel = level
		return
	}

	cur := h.greedy(vec, h.entry, h.maxLevel, level+1)

	ep := []int32{cur}
	for lev := min(level, h.maxLevel); lev >= 0; lev-- {
		candidates := h.searchLayer(vec, ep, h.cfg.EfConstruction, lev)
		maxC := h.cfg.maxConns(lev)
		h.friends[slot][lev] = h.selectClosest(vec, candidates, maxC)

		for _, n := range h.friends[slot][lev] {
			h.friends[n][lev] = append(h.friends[n][lev], slot)
			if len(h.friends[n][lev]) > maxC {
				h.friends[n][lev] = h.selectClosest(h.vectors[n], h.friends[n][lev], maxC)
			}
		}
		ep = candidates
	}

	if level > h.maxLevel {
		h.entry = slot
		h.maxLevel = level
	}
}

// greedy walks from start down to layer stop (inclusive), keeping only the
// single best node per layer.
func (h *HNSW) greedy(query []float32, start int32, top, stop int) int32 {
	cur := start
	curHit := Hit{Slot: int(cur), Score: Dot(query, h.vectors[cur])}
	for lev := top; lev >= stop && lev > 0; lev-- {
		for changed := true; changed; {
			changed = false
			if lev >= len(h.friends[cur]) {
				break
			}
			for _, f := range h.friends[cur][lev] {
				hit := Hit{Slot: int(f), Score: Dot(query, h.vectors[f])}
				if before(hit, curHit) {
					cur, curHit = f, hit
					changed = true
				}
			}
		}
	}
	return cur
}

// searchLayer is a beam search on one layer returning up to ef slots.
func (h *HNSW) searchLayer(query []float32, entryPoints []int32, ef int, layer int) []int32 {
	visited := make(map[int32]struct{}, ef*2)
	var candidates bestFirst
	var results worstFirst

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		hit := Hit{Slot: int(ep), Score: Dot(query, h.vectors[ep])}
		heap.Push(&candidates, hit)
		heap.Push(&results, hit)
		if results.Len() > ef {
			heap.Pop(&results)
		}
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(Hit)
		if results.Len() >= ef && before(results[0], closest) {
			break
		}
		node := int32(closest.Slot)
		if layer >= len(h.friends[node]) {
			continue
		}
		for _, f := range h.friends[node][layer] {
			if _, seen := visited[f]; seen {
				continue
			}
			visited[f] = struct{}{}
			hit := Hit{Slot: int(f), Score: Dot(query, h.vectors[f])}
			if results.Len() < ef || before(hit, results[0]) {
				heap.Push(&candidates, hit)
				heap.Push(&results, hit)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]int32, results.Len())
	for i := range out {
		out[i] = int32(results[i].Slot)
	}
	return out
}

// selectClosest returns up to maxN slots from candidates ranked best first.
func (h *HNSW) selectClosest(query []float32, candidates []int32, maxN int) []int32 {
	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = Hit{Slot: int(c), Score: Dot(query, h.vectors[c])}
	}
	sort.Slice(hits, func(i, j int) bool { return before(hits[i], hits[j]) })
	if len(hits) > maxN {
		hits = hits[:maxN]
	}
	out := make([]int32, len(hits))
	for i, hit := range hits {
		out[i] = int32(hit.Slot)
	}
	return out
}

// randomLevel draws from P(level >= l) = exp(-l / levelMul).
func randomLevel(rng *rand.Rand, levelMul float64) int {
	r := max(1-rng.Float64(), math.SmallestNonzeroFloat64)
	return min(int(-math.Log(r)*levelMul), maxHNSWLevel)
}

// bestFirst pops the best-ranked hit first.
type bestFirst []Hit

func (q bestFirst) Len() int           { return len(q) }
func (q bestFirst) Less(i, j int) bool { return before(q[i], q[j]) }
func (q bestFirst) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *bestFirst) Push(x any)        { *q = append(*q, x.(Hit)) }
func (q *bestFirst) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// worstFirst keeps the worst-ranked hit at the root.
type worstFirst []Hit

func (q worstFirst) Len() int           { return len(q) }
func (q worstFirst) Less(i, j int) bool { return before(q[j], q[i]) }
func (q worstFirst) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *worstFirst) Push(x any)        { *q = append(*q, x.(Hit)) }
func (q *worstFirst) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
