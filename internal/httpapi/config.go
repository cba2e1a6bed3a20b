package httpapi

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// chatTimeout bounds one /chat request, including the wait for a worker.
// Zero means no additional timeout beyond server/connection timeouts.
var chatTimeout time.Duration

// SetChatTimeout sets the /chat timeout (0 disables).
func SetChatTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	chatTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// chatLimiter throttles POST /chat when set.
var chatLimiter *rate.Limiter

// SetRateLimit installs a token bucket for /chat. qps <= 0 disables it; a
// burst below 1 defaults to ceil(qps).
func SetRateLimit(qps float64, burst int) {
	if qps <= 0 {
		chatLimiter = nil
		return
	}
	if burst < 1 {
		burst = int(math.Ceil(qps))
	}
	chatLimiter = rate.NewLimiter(rate.Limit(qps), burst)
}
