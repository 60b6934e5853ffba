// Package router implements replica placement, quorum writes, and
// fan-out/merge search across a fixed set of backend nodes arranged on a
// consistent-hash ring.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/vecring/vecring/pkg/hnsw"
	"github.com/vecring/vecring/pkg/ring"
	"github.com/vecring/vecring/pkg/rpc"
)

// ErrUnavailable is returned when the ring has no nodes, or when a Put
// fails to reach write quorum.
var ErrUnavailable = errors.New("router: unavailable")

// NodeClient is the subset of *rpc.Client the router needs, factored out
// so tests can substitute an in-process fake instead of a real websocket
// connection.
type NodeClient interface {
	Put(ctx context.Context, id uint32, vector []float32) error
	Search(ctx context.Context, vector []float32, k uint32) ([]hnsw.Result, error)
	Snapshot(ctx context.Context) error
}

// Dialer creates a NodeClient connected to a node address. In production
// this is rpc.Dial (adapted to the NodeClient signature); tests supply a
// fake.
type Dialer func(addr string) (NodeClient, error)

// Config configures a new Router.
type Config struct {
	// Ring is the boot-time consistent-hash ring of node addresses.
	Ring *ring.Ring

	// R is the replication factor: preference_list length for Put.
	R int

	// W is the write quorum: minimum successful acks for Put to report
	// success. Must be <= R.
	W int

	// Dial opens a connection to a node address. Required.
	Dial Dialer

	Logger *slog.Logger
}

// Router forwards Put/Search/Snapshot to the backend nodes on its ring,
// per the placement, quorum, and merge rules.
type Router struct {
	ring   *ring.Ring
	r, w   int
	dial   Dialer
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]NodeClient
}

// New creates a Router. Panics if cfg.Dial is nil — a router with no way
// to reach nodes cannot do anything useful.
func New(cfg Config) *Router {
	if cfg.Dial == nil {
		panic("router: Config.Dial must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ring:    cfg.Ring,
		r:       cfg.R,
		w:       cfg.W,
		dial:    cfg.Dial,
		logger:  logger,
		clients: make(map[string]NodeClient),
	}
}

// clientFor returns a cached NodeClient for addr, dialing lazily on first
// use. A dial failure is not cached, so the next call retries.
func (rt *Router) clientFor(addr string) (NodeClient, error) {
	rt.mu.Lock()
	if c, ok := rt.clients[addr]; ok {
		rt.mu.Unlock()
		return c, nil
	}
	rt.mu.Unlock()

	c, err := rt.dial(addr)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.clients[addr] = c
	rt.mu.Unlock()
	return c, nil
}

// Put computes the preference list for id, forwards the write to every
// target in parallel, and reports success once W acknowledgements are in.
func (rt *Router) Put(id uint32, vector []float32) error {
	targets := rt.ring.PreferenceList(id, rt.r)
	if len(targets) == 0 {
		return ErrUnavailable
	}

	type outcome struct {
		addr string
		err  error
	}
	results := make(chan outcome, len(targets))
	for _, addr := range targets {
		go func(addr string) {
			client, err := rt.clientFor(addr)
			if err != nil {
				results <- outcome{addr, err}
				return
			}
			results <- outcome{addr, client.Put(context.Background(), id, vector)}
		}(addr)
	}

	var acks int
	errs := make(map[string]error)
	for i := 0; i < len(targets); i++ {
		o := <-results
		if o.err == nil {
			acks++
			if acks >= rt.w {
				// Quorum reached; remaining replies are drained by the
				// still-running goroutines without a receiver blocking,
				// since results is buffered to len(targets).
				return nil
			}
		} else {
			errs[o.addr] = o.err
		}
	}

	return fmt.Errorf("%w: put reached %d/%d acks (want %d): %v", ErrUnavailable, acks, len(targets), rt.w, errs)
}

// Search broadcasts to every distinct node on the ring, merges all
// returned results by ascending distance (NaN treated as equal to avoid
// total-ordering violations), deduplicates by id keeping the
// smallest-distance copy, and truncates to k.
func (rt *Router) Search(vector []float32, k uint32) ([]hnsw.Result, error) {
	nodes := rt.ring.Nodes()
	if len(nodes) == 0 {
		return nil, ErrUnavailable
	}

	type outcome struct {
		results []hnsw.Result
		err     error
		addr    string
	}
	out := make(chan outcome, len(nodes))
	for _, addr := range nodes {
		go func(addr string) {
			client, err := rt.clientFor(addr)
			if err != nil {
				out <- outcome{addr: addr, err: err}
				return
			}
			results, err := client.Search(context.Background(), vector, k)
			out <- outcome{addr: addr, results: results, err: err}
		}(addr)
	}

	seen := make(map[uint32]float32)
	var order []uint32
	for i := 0; i < len(nodes); i++ {
		o := <-out
		if o.err != nil {
			rt.logger.Warn("search fan-out to node failed", "node", o.addr, "error", o.err)
			continue
		}
		for _, r := range o.results {
			if d, ok := seen[r.ID]; !ok || r.Distance < d {
				if !ok {
					order = append(order, r.ID)
				}
				seen[r.ID] = r.Distance
			}
		}
	}

	merged := make([]hnsw.Result, len(order))
	for i, id := range order {
		merged[i] = hnsw.Result{ID: id, Distance: seen[id]}
	}
	sort.Slice(merged, func(i, j int) bool {
		return lessDistance(merged[i].Distance, merged[j].Distance)
	})
	if int(k) < len(merged) {
		merged = merged[:k]
	}
	return merged, nil
}

// lessDistance orders ascending by distance, treating NaN as equal to any
// value rather than letting it violate a strict total order.
func lessDistance(a, b float32) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return false
	}
	return a < b
}

// Snapshot broadcasts a snapshot request to every node on the ring,
// best-effort, and succeeds if at least one node acknowledges. This is
// additive convenience for the CLI/RPC surface; spec.md's router
// invariants do not name a router-level Snapshot operation.
func (rt *Router) Snapshot(ctx context.Context) error {
	nodes := rt.ring.Nodes()
	if len(nodes) == 0 {
		return ErrUnavailable
	}

	results := make(chan error, len(nodes))
	for _, addr := range nodes {
		go func(addr string) {
			client, err := rt.clientFor(addr)
			if err != nil {
				results <- err
				return
			}
			results <- client.Snapshot(ctx)
		}(addr)
	}

	var successes int
	var lastErr error
	for i := 0; i < len(nodes); i++ {
		if err := <-results; err != nil {
			lastErr = err
		} else {
			successes++
		}
	}
	if successes == 0 {
		return fmt.Errorf("%w: snapshot failed on every node: %v", ErrUnavailable, lastErr)
	}
	return nil
}
