package rpc

import (
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the one outer message shape sent over a websocket connection.
// ID correlates a response to the request that produced it, over a single
// persistent connection held open between one client and one node.
type Envelope struct {
	ID      uuid.UUID `msgpack:"id"`
	Kind    string    `msgpack:"kind"`
	Payload []byte    `msgpack:"payload"`
}

// Message kinds carried in an Envelope.
const (
	KindPut              = "put"
	KindPutResponse      = "put_response"
	KindSearch           = "search"
	KindSearchResponse   = "search_response"
	KindSnapshot         = "snapshot"
	KindSnapshotResponse = "snapshot_response"
	KindError            = "error"
)

// newEnvelope packs a request/response body into an Envelope with a fresh
// correlation id and the given kind.
func newEnvelope(kind string, body any) (Envelope, error) {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: uuid.New(), Kind: kind, Payload: payload}, nil
}

// replyEnvelope packs a response body into an Envelope that correlates to id.
func replyEnvelope(id uuid.UUID, kind string, body any) (Envelope, error) {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Kind: kind, Payload: payload}, nil
}
