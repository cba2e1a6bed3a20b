package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
}

func TestLoadDirFiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.GGUF", "a.gguf", "not-model.txt", "model.bin")
	if err := os.Mkdir(filepath.Join(dir, "sub.gguf"), 0o755); err != nil {
		t.Fatal(err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "a.gguf" || models[0].Name != "a" || models[1].ID != "b.GGUF" {
		t.Fatalf("unexpected models: %+v", models)
	}
	if !filepath.IsAbs(models[0].Path) {
		t.Fatalf("path not absolute: %s", models[0].Path)
	}
}

func TestLoadDirExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if err := os.Mkdir(filepath.Join(home, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(home, "models"), "x.gguf")
	models, err := LoadDir("~/models")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected: %+v", models)
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestQuantOf(t *testing.T) {
	cases := map[string]string{
		"gemma-3-1b-it-Q4_K_M":        "Q4_K_M",
		"Llama-3.2-3B-Instruct.q8_0":  "Q8_0",
		"phi-3-mini-IQ3_XS":           "IQ3_XS",
		"tinyllama-f16":               "F16",
		"model":                       "",
		"Qwen3-8B":                    "",
	}
	for stem, want := range cases {
		if got := quantOf(stem); got != want {
			t.Fatalf("quantOf(%q) = %q, want %q", stem, got, want)
		}
	}
}
