package checkpoints

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// The protobuf format stores a checkpoint as a google.protobuf.Struct so
// the file is readable by any protobuf runtime without a generated schema.
// The struct is built from the JSON field names of Checkpoint.

func marshalProto(ck *Checkpoint) ([]byte, error) {
	raw, err := json.Marshal(ck)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build protobuf struct: %w", err)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

func unmarshalProto(data []byte, ck *Checkpoint) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return err
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, ck)
}
