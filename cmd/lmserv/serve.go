package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lmserv/internal/config"
	"lmserv/internal/httpapi"
	"lmserv/internal/pool"
	"lmserv/internal/registry"
	"lmserv/internal/tools"
	"lmserv/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the worker pool and the HTTP API",
		Example: "  lmserv serve --model models/gemma.gguf --workers 2\n" +
			"  lmserv serve --model hf:ggml-org/gemma-3-1b-it-GGUF --tools tools.json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	fl := cmd.Flags()
	fl.String("addr", "", "HTTP listen address, e.g. 0.0.0.0:8000")
	fl.StringP("model", "m", "", "GGUF path, directory, or hf:owner/repo[:variant]")
	fl.IntP("workers", "w", 0, "Number of llama-cli processes")
	fl.Int("ctx-size", 0, "Context size passed with -c")
	fl.Int("gpu-layers", -1, "Layers to offload (-1 derives from --vram-budget-mb)")
	fl.Int("vram-budget-mb", 0, "VRAM available to one worker in MB")
	fl.Int("main-gpu", 0, "GPU index passed with -mg")
	fl.Int("max-tokens", 0, "Tokens per response passed with -n")
	fl.String("lora", "", "LoRA adapter path")
	fl.String("tools", "", "Tools file; its call grammar constrains every worker")
	fl.String("llama-bin", "", "llama-cli executable (default: $PATH, then build/bin)")
	fl.String("extra-args", "", "Comma-separated args appended to the llama-cli command line")
	fl.String("cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	fl.Float64("rate-limit-qps", 0, "Requests per second accepted on /chat (0 disables)")
	fl.Int("acquire-timeout-seconds", 0, "Seconds a request waits for a free worker (0 waits for the client)")
	fl.Int("ready-timeout-seconds", 0, "Seconds a worker may take to become ready")
	return cmd
}

// loadConfig layers the config file, LMSERV_* env vars and changed flags, in
// that order.
func loadConfig(cmd *cobra.Command, root *rootOptions) (config.Config, error) {
	cfg := config.Default()
	if root.configPath != "" {
		c, err := config.Load(root.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := config.FromEnv(&cfg); err != nil {
		return cfg, err
	}

	fl := cmd.Flags()
	str := func(name string, dst *string) {
		if fl.Changed(name) {
			*dst, _ = fl.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fl.Changed(name) {
			*dst, _ = fl.GetInt(name)
		}
	}
	csv := func(name string, dst *[]string) {
		if fl.Changed(name) {
			v, _ := fl.GetString(name)
			*dst = splitCSV(v)
		}
	}
	str("addr", &cfg.Addr)
	str("model", &cfg.Model)
	num("workers", &cfg.Workers)
	num("ctx-size", &cfg.CtxSize)
	num("gpu-layers", &cfg.GPULayers)
	num("vram-budget-mb", &cfg.VRAMBudgetMB)
	num("main-gpu", &cfg.MainGPU)
	num("max-tokens", &cfg.MaxTokens)
	str("lora", &cfg.LoraPath)
	str("tools", &cfg.ToolsPath)
	str("llama-bin", &cfg.LlamaBin)
	csv("extra-args", &cfg.ExtraArgs)
	csv("cors-origins", &cfg.CORSOrigins)
	num("acquire-timeout-seconds", &cfg.AcquireTimeoutSeconds)
	num("ready-timeout-seconds", &cfg.ReadyTimeoutSeconds)
	if fl.Changed("rate-limit-qps") {
		cfg.RateLimitQPS, _ = fl.GetFloat64("rate-limit-qps")
	}
	if root.logLevel != "" {
		cfg.LogLevel = root.logLevel
	}
	if root.logFormat != "" {
		cfg.LogFormat = root.logFormat
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// workerConfig turns service config into the per-process template.
func workerConfig(cfg config.Config, bin string, loc registry.Locator, grammar string, log *zerolog.Logger) worker.Config {
	return worker.Config{
		Bin:                bin,
		ModelPath:          loc.Path,
		ModelRepo:          loc.Repo,
		CtxSize:            cfg.CtxSize,
		GPULayers:          cfg.EffectiveGPULayers(),
		MainGPU:            cfg.MainGPU,
		LoraPath:           cfg.LoraPath,
		MaxTokens:          cfg.MaxTokens,
		Grammar:            grammar,
		ExtraArgs:          cfg.ExtraArgs,
		ReadyMarkers:       cfg.ReadyMarkers,
		ReadyTimeout:       cfg.ReadyTimeout(),
		IdleTimeout:        cfg.IdleTimeout(),
		FirstOutputTimeout: cfg.FirstOutputTimeout(),
		Logger:             log,
	}
}

func toolsGrammar(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	store, err := tools.Load(path)
	if err != nil {
		return "", err
	}
	if len(store.All()) == 0 {
		return "", nil
	}
	return store.Grammar()
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	bin, err := config.ResolveLlamaBin(cfg.LlamaBin)
	if err != nil {
		return err
	}
	loc, err := registry.Resolve(cfg.Model)
	if err != nil {
		return err
	}
	gbnf, err := toolsGrammar(cfg.ToolsPath)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	wcfg := workerConfig(cfg, bin, loc, gbnf, &log)
	p := pool.New(pool.Config{
		Size:           cfg.Workers,
		AcquireTimeout: cfg.AcquireTimeout(),
		Logger:         &log,
		Publisher:      pool.NewLogPublisher(log),
	}, func() pool.Worker { return worker.New(wcfg) })

	log.Info().
		Str("bin", bin).
		Str("model", loc.String()).
		Int("workers", cfg.Workers).
		Int("gpu_layers", wcfg.GPULayers).
		Bool("grammar", gbnf != "").
		Msg("starting workers")
	if err := p.Start(ctx); err != nil {
		return err
	}

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRateLimit(cfg.RateLimitQPS, cfg.RateLimitBurst)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(p),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("lmserv listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	if err := p.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("pool shutdown")
	}
	return serveErr
}
