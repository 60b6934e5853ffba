package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vecring/vecring/pkg/hnsw"
)

// Client holds one persistent websocket connection to a node (a backend or
// a router) and correlates requests to responses by envelope id.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uuid.UUID]chan Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a websocket connection to url (e.g. "ws://host:port/rpc")
// and starts the background read loop that demultiplexes responses.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[uuid.UUID]chan Envelope),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.Close()
			return
		}

		var env Envelope
		if err := msgpack.Unmarshal(raw, &env); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- env
		}
	}
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()

		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	})
	return err
}

// call sends an envelope and waits for its correlated reply, or for ctx to
// be done, or for the connection to close.
func (c *Client) call(ctx context.Context, kind string, body any) (Envelope, error) {
	req, err := newEnvelope(kind, body)
	if err != nil {
		return Envelope{}, err
	}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	raw, err := msgpack.Marshal(req)
	if err != nil {
		return Envelope{}, err
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.BinaryMessage, raw)
	c.writeMu.Unlock()
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: write: %w", err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Envelope{}, errors.New("rpc: connection closed while waiting for reply")
		}
		return reply, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-c.closed:
		return Envelope{}, errors.New("rpc: connection closed while waiting for reply")
	}
}

// Put sends a PutRequest and waits for its PutResponse.
func (c *Client) Put(ctx context.Context, id uint32, vector []float32) error {
	reply, err := c.call(ctx, KindPut, PutRequest{ID: id, Vector: vector})
	if err != nil {
		return err
	}
	if reply.Kind == KindError {
		return decodeRPCError(reply)
	}
	var resp PutResponse
	if err := msgpack.Unmarshal(reply.Payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("rpc: put did not succeed")
	}
	return nil
}

// Search sends a SearchRequest and waits for its SearchResponse.
func (c *Client) Search(ctx context.Context, vector []float32, k uint32) ([]hnsw.Result, error) {
	reply, err := c.call(ctx, KindSearch, SearchRequest{Vector: vector, K: k})
	if err != nil {
		return nil, err
	}
	if reply.Kind == KindError {
		return nil, decodeRPCError(reply)
	}
	var resp SearchResponse
	if err := msgpack.Unmarshal(reply.Payload, &resp); err != nil {
		return nil, err
	}
	results := make([]hnsw.Result, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = hnsw.Result{ID: r.ID, Distance: r.Distance}
	}
	return results, nil
}

// Snapshot sends a SnapshotRequest and waits for its SnapshotResponse.
func (c *Client) Snapshot(ctx context.Context) error {
	reply, err := c.call(ctx, KindSnapshot, SnapshotRequest{})
	if err != nil {
		return err
	}
	if reply.Kind == KindError {
		return decodeRPCError(reply)
	}
	var resp SnapshotResponse
	if err := msgpack.Unmarshal(reply.Payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("rpc: snapshot did not succeed")
	}
	return nil
}

func decodeRPCError(env Envelope) error {
	var errResp ErrorResponse
	if err := msgpack.Unmarshal(env.Payload, &errResp); err != nil {
		return errors.New("rpc: server returned an error envelope that could not be decoded")
	}
	return fmt.Errorf("rpc: server error: %s", errResp.Message)
}
