// Package jitcapb defines jitca's wire messages and service description by
// hand, in the shape protoc-gen-go-grpc would generate, but marshaled as
// JSON instead of protobuf: there is no .proto toolchain in this
// repository, so the codec below is registered under the "json" content
// subtype and jitcapb's message types carry `json:` tags instead of
// generated protobuf field numbers. Everything downstream of
// google.golang.org/grpc (dialing, interceptors, TLS, streaming control
// flow) is the real library, unmodified.
package jitcapb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jitcapb: unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
