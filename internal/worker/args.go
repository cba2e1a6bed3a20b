package worker

import "strconv"

// BuildArgs returns the llama-cli argument vector for cfg, binary excluded.
func BuildArgs(cfg Config) []string {
	cfg = cfg.withDefaults()
	var args []string
	if cfg.Remote() {
		args = append(args, "-hf", cfg.ModelRepo)
	} else {
		args = append(args, "-m", cfg.ModelPath)
	}
	args = append(args, "-i", "--interactive-first")
	if cfg.CtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.CtxSize))
	}
	if cfg.GPULayers >= 0 {
		args = append(args, "-ngl", strconv.Itoa(cfg.GPULayers))
	}
	if cfg.MainGPU > 0 {
		args = append(args, "-mg", strconv.Itoa(cfg.MainGPU))
	}
	if cfg.LoraPath != "" {
		args = append(args, "--lora", cfg.LoraPath)
	}
	args = append(args, "-r", cfg.ReversePrompt)
	if cfg.MaxTokens > 0 {
		args = append(args, "-n", strconv.Itoa(cfg.MaxTokens))
	}
	if cfg.Grammar != "" {
		args = append(args, "--grammar", cfg.Grammar)
	}
	return append(args, cfg.ExtraArgs...)
}
