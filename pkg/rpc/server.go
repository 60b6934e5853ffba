package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vecring/vecring/pkg/hnsw"
)

// NodeHandler is the set of operations a node exposes over RPC. Both
// *backend.Backend and a router implement this, since a router forwards
// the same three operations to the nodes it fronts.
type NodeHandler interface {
	Put(id uint32, vector []float32) error
	Search(query []float32, k uint32) ([]hnsw.Result, error)
	Snapshot(ctx context.Context) error
}

// Server upgrades incoming HTTP connections to websocket and serves
// NodeHandler requests over them. Each connection is read on its own
// goroutine, and each request is handled on a goroutine of its own, so
// requests on one connection may run concurrently and reply out of order.
type Server struct {
	handler  NodeHandler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a Server dispatching to handler.
func NewServer(handler NodeHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler, upgrading the request to a websocket
// connection and serving RPC requests on it until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := msgpack.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("envelope decode failed", "error", err)
			continue
		}

		go s.handle(conn, &writeMu, env)
	}
}

func (s *Server) handle(conn *websocket.Conn, writeMu *sync.Mutex, env Envelope) {
	reply, err := s.dispatch(env)
	if err != nil {
		reply, _ = replyEnvelope(env.ID, KindError, ErrorResponse{Message: err.Error()})
	}

	out, err := msgpack.Marshal(reply)
	if err != nil {
		s.logger.Error("envelope encode failed", "error", err)
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
		s.logger.Warn("websocket write error", "error", err)
	}
}

func (s *Server) dispatch(env Envelope) (Envelope, error) {
	switch env.Kind {
	case KindPut:
		var req PutRequest
		if err := msgpack.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, err
		}
		if err := s.handler.Put(req.ID, req.Vector); err != nil {
			return Envelope{}, err
		}
		return replyEnvelope(env.ID, KindPutResponse, PutResponse{Success: true})

	case KindSearch:
		var req SearchRequest
		if err := msgpack.Unmarshal(env.Payload, &req); err != nil {
			return Envelope{}, err
		}
		results, err := s.handler.Search(req.Vector, req.K)
		if err != nil {
			return Envelope{}, err
		}
		resp := SearchResponse{Results: make([]SearchResult, len(results))}
		for i, r := range results {
			resp.Results[i] = SearchResult{ID: r.ID, Distance: r.Distance}
		}
		return replyEnvelope(env.ID, KindSearchResponse, resp)

	case KindSnapshot:
		if err := s.handler.Snapshot(context.Background()); err != nil {
			return Envelope{}, err
		}
		return replyEnvelope(env.ID, KindSnapshotResponse, SnapshotResponse{Success: true})

	default:
		return replyEnvelope(env.ID, KindError, ErrorResponse{Message: "rpc: unknown kind " + env.Kind})
	}
}
