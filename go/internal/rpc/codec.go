// Package rpc holds the Connect plumbing shared by the kiosk services: a
// plain JSON codec for hand-written message structs and the interceptors
// every handler is mounted with.
package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec encodes Connect messages with encoding/json. It replaces the
// default protobuf JSON codec under the same name so curl and browser
// clients keep working with application/json.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (JSONCodec) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}

// HandlerOptions returns the options every kiosk handler is built with
func HandlerOptions(extra ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, extra...)
}

// ClientOptions returns the options every kiosk client is built with
func ClientOptions(extra ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, extra...)
}
