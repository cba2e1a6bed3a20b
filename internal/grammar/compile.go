// Package grammar compiles a small JSON Schema subset into a GBNF grammar for
// llama.cpp's --grammar flag.
//
// Supported: object (properties in document order, all optional), string
// with or without enum, number, boolean, oneOf, and $ref by name. Anything
// else becomes the literal rule null. "required" is accepted but not
// enforced, and $ref is not expanded: the referenced rule must be defined by
// other means.
package grammar

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	stringRule  = `"\"" ([-a-zA-Z0-9_ ,./]*) "\""`
	numberRule  = `("-"? ([0-9] | [1-9] [0-9]*)) ("." [0-9]+)? ([eE] [-+]? [0-9]+)?`
	booleanRule = `("true" | "false")`
	nullRule    = "null"
	emptyObject = `"{" "}"`
)

// Compile returns GBNF text for s whose start rule is name.
func Compile(name string, s *Schema) string {
	r := NewRules()
	r.Add(name, s)
	return r.String()
}

// Rules is an insertion-ordered set of productions keyed by name.
type Rules struct {
	names []string
	rhs   map[string]string
}

func NewRules() *Rules { return &Rules{rhs: make(map[string]string)} }

// Add converts s into rules rooted at name. Names already present are left
// untouched.
func (r *Rules) Add(name string, s *Schema) {
	r.convert(RuleName(name), s)
}

func (r *Rules) Has(name string) bool {
	_, ok := r.rhs[name]
	return ok
}

// Get returns the right-hand side for name.
func (r *Rules) Get(name string) (string, bool) {
	v, ok := r.rhs[name]
	return v, ok
}

// Names lists rule names in emission order.
func (r *Rules) Names() []string { return append([]string(nil), r.names...) }

func (r *Rules) Len() int { return len(r.names) }

func (r *Rules) String() string {
	var b strings.Builder
	for _, n := range r.names {
		b.WriteString(n)
		b.WriteString(" ::= ")
		b.WriteString(r.rhs[n])
		b.WriteByte('\n')
	}
	return b.String()
}

// reserve claims name so it is emitted before any child rule.
func (r *Rules) reserve(name string) {
	r.names = append(r.names, name)
	r.rhs[name] = ""
}

func (r *Rules) convert(name string, s *Schema) {
	if r.Has(name) {
		return
	}
	r.reserve(name)
	if s == nil {
		r.rhs[name] = nullRule
		return
	}
	var rhs string
	switch {
	case s.Type == "object":
		rhs = r.object(name, s)
	case s.Type == "string" && len(s.Enum) > 0:
		rhs = enumRule(s.Enum)
	case s.Type == "string":
		rhs = stringRule
	case s.Type == "number":
		rhs = numberRule
	case s.Type == "boolean":
		rhs = booleanRule
	case len(s.OneOf) > 0:
		alts := make([]string, len(s.OneOf))
		for i, sub := range s.OneOf {
			alts[i] = r.fresh(name + "-oneof-" + strconv.Itoa(i))
			r.convert(alts[i], sub)
		}
		rhs = strings.Join(alts, " | ")
	case s.Ref != "":
		rhs = RuleName(s.Ref[strings.LastIndex(s.Ref, "/")+1:])
	default:
		rhs = nullRule
	}
	r.rhs[name] = rhs
}

func (r *Rules) object(name string, s *Schema) string {
	if len(s.Properties) == 0 {
		return emptyObject
	}
	pairs := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		child := r.fresh(RuleName(name + "-" + p.Name))
		r.convert(child, p.Schema)
		pairs = append(pairs, jsonLiteral(p.Name)+` ":" `+child)
	}
	return `"{" ( ` + strings.Join(pairs, ` "," `) + ` )? "}"`
}

// fresh returns base, or base-2, base-3 and so on when sanitising made base
// collide with a rule that already exists.
func (r *Rules) fresh(base string) string {
	name := base
	for i := 2; r.Has(name); i++ {
		name = base + "-" + strconv.Itoa(i)
	}
	return name
}

func enumRule(values []any) string {
	alts := make([]string, len(values))
	for i, v := range values {
		alts[i] = jsonLiteral(v)
	}
	return strings.Join(alts, " | ")
}

// jsonLiteral is a GBNF string literal matching v's JSON encoding.
func jsonLiteral(v any) string {
	enc, err := json.Marshal(v)
	if err != nil {
		return nullRule
	}
	return Literal(string(enc))
}

// Literal quotes s as a GBNF string literal.
func Literal(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// RuleName maps s onto the GBNF identifier alphabet [a-zA-Z0-9-].
func RuleName(s string) string {
	if s == "" {
		return "root"
	}
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			b[i] = '-'
		}
	}
	return string(b)
}
