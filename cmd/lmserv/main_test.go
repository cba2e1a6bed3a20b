package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmserv/internal/tools"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestGrammarCommand(t *testing.T) {
	p := writeFile(t, t.TempDir(), "schema.json", `{"type":"string","enum":["a","b"]}`)
	out, err := run(t, "grammar", p)
	require.NoError(t, err)
	assert.Equal(t, `root ::= "\"a\"" | "\"b\""`+"\n", out)
}

func TestGrammarCommandBadSchema(t *testing.T) {
	p := writeFile(t, t.TempDir(), "schema.json", `{"type":`)
	_, err := run(t, "grammar", p)
	require.Error(t, err)
}

func TestToolsCommands(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tools.json", `{"tools":[{"name":"get_weather","description":"Current weather","parameters":{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}}]}`)

	out, err := run(t, "tools", "list", "--tools", p)
	require.NoError(t, err)
	assert.Contains(t, out, "get_weather")
	assert.Contains(t, out, "Current weather")

	out, err = run(t, "tools", "grammar", "--tools", p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "root ::= "), out)
	assert.Contains(t, out, `"\"get_weather\""`)

	reply := writeFile(t, dir, "reply.json", `{"thought":"t","tool_call":{"name":"get_weather","arguments":{"city":"Oslo"}}}`)
	out, err = run(t, "tools", "validate", "--tools", p, reply)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	bad := writeFile(t, dir, "bad.json", `{"thought":"t","tool_call":{"name":"get_weather","arguments":{}}}`)
	_, err = run(t, "tools", "validate", "--tools", p, bad)
	require.Error(t, err)
}

func TestToolsEditCommands(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tools.json")
	schema := writeFile(t, dir, "weather.json", `{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`)

	out, err := run(t, "tools", "add", "get_weather", "--tools", p, "--description", "Current weather", "--parameters", "@"+schema)
	require.NoError(t, err)
	assert.Equal(t, "added get_weather\n", out)

	_, err = run(t, "tools", "add", "get_weather", "--tools", p)
	require.ErrorIs(t, err, tools.ErrExists)
	_, err = run(t, "tools", "add", "broken", "--tools", p, "--parameters", `{"type":`)
	require.Error(t, err)

	out, err = run(t, "tools", "update", "get_weather", "--tools", p, "--description", "Weather now")
	require.NoError(t, err)
	assert.Equal(t, "updated get_weather\n", out)

	store, err := tools.Load(p)
	require.NoError(t, err)
	got, ok := store.Get("get_weather")
	require.True(t, ok)
	assert.Equal(t, "Weather now", got.Description)
	assert.Contains(t, string(got.Parameters), `"city"`)

	_, err = run(t, "tools", "update", "nope", "--tools", p, "--description", "x")
	require.ErrorIs(t, err, tools.ErrNotFound)

	out, err = run(t, "tools", "delete", "get_weather", "--tools", p)
	require.NoError(t, err)
	assert.Equal(t, "deleted get_weather\n", out)
	_, err = run(t, "tools", "delete", "get_weather", "--tools", p)
	require.ErrorIs(t, err, tools.ErrNotFound)

	out, err = run(t, "tools", "list", "--tools", p)
	require.NoError(t, err)
	assert.NotContains(t, out, "get_weather")
}

func TestModelsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gemma-3-1b-Q4_K_M.gguf", "")
	writeFile(t, dir, "notes.txt", "")

	out, err := run(t, "models", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "gemma-3-1b-Q4_K_M")
	assert.Contains(t, out, "Q4_K_M")
	assert.NotContains(t, out, "notes.txt")

	out, err = run(t, "models", "--dir", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"models"`)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	_, err = newLogger(&buf, "loud", "")
	assert.Error(t, err)
	_, err = newLogger(&buf, "", "xml")
	assert.Error(t, err)
}
