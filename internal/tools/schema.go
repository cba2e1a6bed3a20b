package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"lmserv/internal/grammar"
)

// CallRule is the start rule name of the tool-call grammar.
const CallRule = "root"

// ValidateParameters checks that raw is a usable JSON Schema. Empty is allowed.
func ValidateParameters(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
		return fmt.Errorf("invalid parameters schema: %w", err)
	}
	if _, err := grammar.Parse(raw); err != nil {
		return err
	}
	return nil
}

// CallSchema is the JSON Schema of a model reply that thinks and then picks
// exactly one tool:
//
//	{"thought": "...", "tool_call": {"name": "<tool>", "arguments": {...}}}
func (s *Store) CallSchema() (*grammar.Schema, error) {
	tools := s.All()
	if len(tools) == 0 {
		return nil, errors.New("no tools defined")
	}
	branches := make([]*grammar.Schema, 0, len(tools))
	for _, t := range tools {
		args := &grammar.Schema{Type: "object"}
		if len(t.Parameters) > 0 && string(t.Parameters) != "null" {
			p, err := grammar.Parse(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			args = p
		}
		branches = append(branches, &grammar.Schema{
			Type: "object",
			Properties: []grammar.Property{
				{Name: "name", Schema: &grammar.Schema{Type: "string", Enum: []any{t.Name}}},
				{Name: "arguments", Schema: args},
			},
			Required: []string{"name", "arguments"},
		})
	}
	return &grammar.Schema{
		Type: "object",
		Properties: []grammar.Property{
			{Name: "thought", Schema: &grammar.Schema{Type: "string"}},
			{Name: "tool_call", Schema: &grammar.Schema{OneOf: branches}},
		},
		Required: []string{"thought", "tool_call"},
	}, nil
}

// Grammar compiles CallSchema into GBNF for llama-cli's --grammar flag.
func (s *Store) Grammar() (string, error) {
	cs, err := s.CallSchema()
	if err != nil {
		return "", err
	}
	return grammar.Compile(CallRule, cs), nil
}

// ValidateCall checks model output against the call schema. The tool
// parameters are checked with their full JSON Schema, not the reduced form
// the grammar understands.
func (s *Store) ValidateCall(output string) error {
	doc, err := s.validationSchema()
	if err != nil {
		return err
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(doc), gojsonschema.NewStringLoader(output))
	if err != nil {
		return fmt.Errorf("validate tool call: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid tool call: %s", strings.Join(msgs, "; "))
}

func (s *Store) validationSchema() ([]byte, error) {
	tools := s.All()
	if len(tools) == 0 {
		return nil, errors.New("no tools defined")
	}
	branches := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		var args any = map[string]any{"type": "object"}
		if len(t.Parameters) > 0 && string(t.Parameters) != "null" {
			args = t.Parameters
		}
		branches = append(branches, map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":      map[string]any{"type": "string", "enum": []string{t.Name}},
				"arguments": args,
			},
			"required": []string{"name", "arguments"},
		})
	}
	return json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thought":   map[string]any{"type": "string"},
			"tool_call": map[string]any{"oneOf": branches},
		},
		"required": []string{"thought", "tool_call"},
	})
}
