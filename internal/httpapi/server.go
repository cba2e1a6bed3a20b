package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lmserv/internal/pool"
	"lmserv/internal/worker"
	"lmserv/pkg/types"
)

// Service defines the methods required by the HTTP API layer. *pool.Pool
// implements it.
type Service interface {
	Acquire(ctx context.Context) (pool.Worker, error)
	Release(ctx context.Context, w pool.Worker) error
	Stats() pool.Stats
	Ready() bool
}

// NewMux builds the HTTP router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Request-Id", "X-Log-Level"}),
			ExposedHeaders: []string{"X-Worker-Id"},
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.With(rateLimit).Post("/chat", chatHandler(svc))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s := svc.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.HealthResponse{
			Status:      "ok",
			WorkersIdle: s.Free,
			Busy:        s.Busy,
			Capacity:    s.Capacity,
			Waiting:     s.Waiting,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l := chatLimiter; l != nil && !l.Allow() {
			IncrementBackpressure("rate_limit")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chatHandler streams one turn as text/plain, one fragment per line.
//
//	@Summary	Run one prompt on an idle worker
//	@Accept		json
//	@Produce	plain
//	@Param		request	body		types.ChatRequest	true	"prompt"
//	@Success	200		{string}	string				"fragments, one per line"
//	@Failure	400		{object}	types.ErrorResponse
//	@Failure	429		{object}	types.ErrorResponse
//	@Failure	503		{object}	types.ErrorResponse
//	@Router		/chat [post]
func chatHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if req.MaxTokens < 0 {
			writeJSONError(w, http.StatusBadRequest, "max_tokens must be >= 0")
			return
		}

		lg := requestLogger(r)
		lvl := requestLogLevel(r)
		start := time.Now()

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if chatTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, chatTimeout)
			defer tcancel()
		}

		wk, err := svc.Acquire(ctx)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("pool_busy")
			}
			if r.Context().Err() != nil {
				return
			}
			if lvl >= LevelError {
				lg.Warn().Err(err).Int("status", status).Dur("dur", time.Since(start)).Msg("chat rejected")
			}
			writeJSONError(w, status, err.Error())
			return
		}
		defer func() {
			// The worker must go back even when the client left.
			if err := svc.Release(context.WithoutCancel(ctx), wk); err != nil {
				lg.Error().Err(err).Str("worker", wk.ID()).Msg("release worker")
			}
		}()

		frags, err := wk.Infer(ctx, req.Prompt, worker.InferOptions{MaxFragments: req.MaxTokens})
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			if lvl >= LevelError {
				lg.Error().Err(err).Str("worker", wk.ID()).Msg("chat failed")
			}
			return
		}
		if lvl >= LevelInfo {
			lg.Info().Str("worker", wk.ID()).Int("prompt_len", len(req.Prompt)).Msg("chat start")
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Worker-Id", wk.ID())
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		n := 0
		for frag := range frags {
			if lvl >= LevelDebug {
				lg.Debug().Str("worker", wk.ID()).Str("fragment", frag).Msg("chat>")
			}
			if _, err := io.WriteString(w, frag+"\n"); err != nil {
				if !errors.Is(err, context.Canceled) {
					lg.Debug().Err(err).Msg("client write failed")
				}
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
			n++
		}
		if lvl >= LevelInfo {
			lg.Info().Str("worker", wk.ID()).Int("fragments", n).Dur("dur", time.Since(start)).Msg("chat end")
		}
	}
}
