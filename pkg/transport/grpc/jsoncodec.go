package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec carries topology notifications as JSON so neither side needs
// protobuf codegen.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	serviceName     = "console.v1.Topology"
	subscribeMethod  = "/" + serviceName + "/Subscribe"
)

// subscribeRequest opens a notification stream for one topic.
type subscribeRequest struct {
	Topic string `json:"topic"`
}

// notification is one message on the stream.
type notification struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data,omitempty"`
}
