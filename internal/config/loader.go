package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service. Fields left out of a file
// keep the values from Default; ApplyDefaults fills remaining zeros.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	Model     string `json:"model" yaml:"model" toml:"model" env:"MODEL"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir" env:"MODELS_DIR"`
	Workers   int    `json:"workers" yaml:"workers" toml:"workers" env:"WORKERS"`
	CtxSize   int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size" env:"CTX_SIZE"`
	// GPULayers < 0 derives the layer count from VRAMBudgetMB.
	GPULayers    int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" env:"GPU_LAYERS"`
	VRAMBudgetMB int      `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb" env:"VRAM_BUDGET_MB"`
	MainGPU      int      `json:"main_gpu" yaml:"main_gpu" toml:"main_gpu" env:"MAIN_GPU"`
	MaxTokens    int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" env:"MAX_TOKENS"`
	LoraPath     string   `json:"lora_path" yaml:"lora_path" toml:"lora_path" env:"LORA_PATH"`
	ToolsPath    string   `json:"tools_path" yaml:"tools_path" toml:"tools_path" env:"TOOLS_PATH"`
	LlamaBin     string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin" env:"LLAMA_BIN"`
	ExtraArgs    []string `json:"extra_args" yaml:"extra_args" toml:"extra_args" env:"EXTRA_ARGS"`
	ReadyMarkers []string `json:"ready_markers" yaml:"ready_markers" toml:"ready_markers" env:"READY_MARKERS"`

	ReadyTimeoutSeconds       int `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds" env:"READY_TIMEOUT_SECONDS"`
	IdleTimeoutMS             int `json:"idle_timeout_ms" yaml:"idle_timeout_ms" toml:"idle_timeout_ms" env:"IDLE_TIMEOUT_MS"`
	FirstOutputTimeoutSeconds int `json:"first_output_timeout_seconds" yaml:"first_output_timeout_seconds" toml:"first_output_timeout_seconds" env:"FIRST_OUTPUT_TIMEOUT_SECONDS"`
	AcquireTimeoutSeconds     int `json:"acquire_timeout_seconds" yaml:"acquire_timeout_seconds" toml:"acquire_timeout_seconds" env:"ACQUIRE_TIMEOUT_SECONDS"`

	LogLevel       string   `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat      string   `json:"log_format" yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`
	RateLimitQPS   float64  `json:"rate_limit_qps" yaml:"rate_limit_qps" toml:"rate_limit_qps" env:"RATE_LIMIT_QPS"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
