package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodel: /m/gemma.gguf\nworkers: 3\nvram_budget_mb: 10000\nextra_args: [\"--temp\", \"0.1\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Model != "/m/gemma.gguf" || cfg.Workers != 3 || cfg.VRAMBudgetMB != 10000 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.ExtraArgs) != 2 || cfg.ExtraArgs[1] != "0.1" {
		t.Fatalf("extra args: %q", cfg.ExtraArgs)
	}
	// Unspecified fields keep defaults.
	if cfg.GPULayers != -1 || cfg.CtxSize != DefaultCtxSize || cfg.EffectiveGPULayers() != 20 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","model":"hf:org/repo","gpu_layers":0,"ready_timeout_seconds":90,"cors_origins":["http://a"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.Model != "hf:org/repo" || cfg.GPULayers != 0 || cfg.ReadyTimeout().Seconds() != 90 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 {
		t.Fatalf("cors: %q", cfg.CORSOrigins)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodel=\"/x.gguf\"\nidle_timeout_ms=500\nrate_limit_qps=2.5\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.Model != "/x.gguf" || cfg.IdleTimeout().Milliseconds() != 500 || cfg.RateLimitQPS != 2.5 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	d := t.TempDir()
	cases := map[string]string{
		"cfg.txt":   "not supported",
		"bad.yaml":  "addr: :8080\n: broken\n",
		"bad.json":  `{ "addr": ":8080", "model": }`,
		"bad.toml":  "addr=:8080\nmodel\n",
		"type.json": `{"workers":"many"}`,
	}
	for name, content := range cases {
		p := writeTempFile(t, d, name, content)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
