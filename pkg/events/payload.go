package events

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PayloadContentType is the content type of published event bodies
const PayloadContentType = "application/x-protobuf"

// EncodePayload marshals fields as a google.protobuf.Struct.
// Values must be representable by structpb: strings, bools, numbers, nil, []any, map[string]any.
func EncodePayload(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodePayload is the inverse of EncodePayload
func DecodePayload(body []byte) (map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return s.AsMap(), nil
}
