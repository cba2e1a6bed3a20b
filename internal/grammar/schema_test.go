package grammar

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsPropertyOrder(t *testing.T) {
	s, err := Parse([]byte(`{"type":"object","properties":{"zeta":{"type":"string"},"alpha":{"type":"number"},"mid":{}},"required":["alpha"]}`))
	require.NoError(t, err)
	require.Len(t, s.Properties, 3)
	assert.Equal(t, "zeta", s.Properties[0].Name)
	assert.Equal(t, "alpha", s.Properties[1].Name)
	assert.Equal(t, "mid", s.Properties[2].Name)
	assert.Equal(t, "number", s.Property("alpha").Type)
	assert.Nil(t, s.Property("missing"))
	assert.Equal(t, []string{"alpha"}, s.Required)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	for _, doc := range []string{`[`, `{"properties":[1]}`, `{"type":5}`} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestMarshalKeepsOrder(t *testing.T) {
	s := &Schema{
		Type: "object",
		Properties: []Property{
			{Name: "thought", Schema: &Schema{Type: "string"}},
			{Name: "call", Schema: &Schema{OneOf: []*Schema{{Type: "string", Enum: []any{"a"}}}}},
		},
		Required: []string{"thought"},
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"object","properties":{"thought":{"type":"string"},"call":{"oneOf":[{"type":"string","enum":["a"]}]}},"required":["thought"]}`,
		string(b))

	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, Compile("root", s), Compile("root", back))
}
