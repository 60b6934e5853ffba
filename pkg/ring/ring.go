// Package ring implements an immutable consistent-hash ring used to place
// keys onto a fixed set of node addresses with bounded key movement when
// nodes are added or removed across process restarts.
package ring

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the number of ring tokens placed per physical node
// when a Ring is built without an explicit override.
const DefaultVirtualNodes = 128

// token is one hash position on the ring, owned by a physical node.
type token struct {
	hash uint64
	node string
}

// Ring is a consistent-hash ring over a fixed set of node addresses.
// It is built once at boot and is safe for concurrent read-only use —
// there is no API to mutate a Ring after construction.
type Ring struct {
	tokens []token // sorted ascending by hash
	nodes  []string
}

// New builds a Ring over nodes, placing virtualNodes tokens per node
// (DefaultVirtualNodes if virtualNodes <= 0). Duplicate node addresses are
// ignored after the first occurrence.
func New(nodes []string, virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}

	seen := make(map[string]struct{}, len(nodes))
	var distinct []string
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		distinct = append(distinct, n)
	}

	tokens := make([]token, 0, len(distinct)*virtualNodes)
	for _, n := range distinct {
		for v := 0; v < virtualNodes; v++ {
			tokens = append(tokens, token{hash: hashVirtualNode(n, v), node: n})
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].hash < tokens[j].hash })

	return &Ring{tokens: tokens, nodes: distinct}
}

// hashVirtualNode derives the ring hash for the v'th virtual replica of
// node address addr.
func hashVirtualNode(addr string, v int) uint64 {
	var buf [8]byte
	n := v
	for i := range buf {
		buf[i] = byte(n)
		n >>= 8
	}
	d := xxhash.New()
	_, _ = d.WriteString(addr)
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// Empty reports whether the ring has no nodes.
func (r *Ring) Empty() bool {
	return len(r.nodes) == 0
}

// Nodes returns every distinct node address on the ring.
func (r *Ring) Nodes() []string {
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// PreferenceList hashes key and returns up to n distinct node addresses,
// starting from the first ring token with hash >= hash(key) (wrapping
// around the ring), in replica preference order.
func (r *Ring) PreferenceList(key uint32, n int) []string {
	if len(r.tokens) == 0 || n <= 0 {
		return nil
	}

	h := hashKey(key)
	start := sort.Search(len(r.tokens), func(i int) bool { return r.tokens[i].hash >= h })

	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < len(r.tokens) && len(out) < n; i++ {
		t := r.tokens[(start+i)%len(r.tokens)]
		if _, ok := seen[t.node]; ok {
			continue
		}
		seen[t.node] = struct{}{}
		out = append(out, t.node)
	}
	return out
}

// hashKey hashes an integer key onto the ring's 64-bit token space.
func hashKey(key uint32) uint64 {
	var buf [4]byte
	buf[0] = byte(key)
	buf[1] = byte(key >> 8)
	buf[2] = byte(key >> 16)
	buf[3] = byte(key >> 24)
	return xxhash.Sum64(buf[:])
}
