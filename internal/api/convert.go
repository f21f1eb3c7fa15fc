package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a JSON-encodable value into a Struct. Slices are wrapped
// as {"items": [...]}. Numbers travel as doubles, so integers above 2^53 lose
// precision.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	var fields map[string]any
	switch d := decoded.(type) {
	case nil:
		fields = map[string]any{}
	case map[string]any:
		fields = d
	default:
		fields = map[string]any{"items": d}
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into v using v's JSON tags. A nil s leaves v unchanged.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	return remarshal(s.AsMap(), v)
}

// FromItems decodes an {"items": [...]} Struct into the slice pointed to by v.
func FromItems(s *structpb.Struct, v any) error {
	items, ok := s.GetFields()["items"]
	if !ok {
		return nil
	}
	return remarshal(items.AsInterface(), v)
}

// remarshal goes through encoding/json, which writes whole doubles without
// an exponent, so they decode into integer fields.
func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
