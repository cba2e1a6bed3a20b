package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Schema is the subset of JSON Schema the compiler understands. Unknown
// keywords are dropped on parse. Properties keep document order.
type Schema struct {
	Type       string
	Enum       []any
	Properties []Property
	Required   []string
	OneOf      []*Schema
	Ref        string
}

// Property is one named entry of an object schema.
type Property struct {
	Name   string
	Schema *Schema
}

// Parse decodes a JSON Schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}

// Property returns the named property's schema, or nil.
func (s *Schema) Property(name string) *Schema {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

type rawSchema struct {
	Type       json.RawMessage `json:"type,omitempty"`
	Enum       []any           `json:"enum,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Required   []string        `json:"required,omitempty"`
	OneOf      []*Schema       `json:"oneOf,omitempty"`
	Ref        string          `json:"$ref,omitempty"`
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typ, err := decodeType(raw.Type)
	if err != nil {
		return err
	}
	props, err := decodeProperties(raw.Properties)
	if err != nil {
		return err
	}
	*s = Schema{
		Type:       typ,
		Enum:       raw.Enum,
		Properties: props,
		Required:   raw.Required,
		OneOf:      raw.OneOf,
		Ref:        raw.Ref,
	}
	return nil
}

// decodeType accepts "type" as a string or a list; from a list the first
// non-null entry wins.
func decodeType(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", fmt.Errorf("schema type: %w", err)
	}
	for _, t := range many {
		if t != "null" {
			return t, nil
		}
	}
	return "", nil
}

func decodeProperties(raw json.RawMessage) ([]Property, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema properties: want object, got %v", tok)
	}
	var props []Property
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("schema properties: bad key %v", tok)
		}
		sub := new(Schema)
		if err := dec.Decode(sub); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Schema: sub})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return props, nil
}

// MarshalJSON writes the schema back with properties in order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	field := func(key string, v any) error {
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		b.Write(k)
		b.WriteByte(':')
		b.Write(enc)
		return nil
	}
	if s.Type != "" {
		if err := field("type", s.Type); err != nil {
			return nil, err
		}
	}
	if len(s.Enum) > 0 {
		if err := field("enum", s.Enum); err != nil {
			return nil, err
		}
	}
	if s.Properties != nil {
		if err := field("properties", orderedProps(s.Properties)); err != nil {
			return nil, err
		}
	}
	if len(s.Required) > 0 {
		if err := field("required", s.Required); err != nil {
			return nil, err
		}
	}
	if len(s.OneOf) > 0 {
		if err := field("oneOf", s.OneOf); err != nil {
			return nil, err
		}
	}
	if s.Ref != "" {
		if err := field("$ref", s.Ref); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

type orderedProps []Property

func (ps orderedProps) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, p := range ps {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Schema)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
