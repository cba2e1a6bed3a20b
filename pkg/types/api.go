package types

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Required prompt text. Leading and trailing whitespace is trimmed.
	// example: Tell me a joke about llamas.
	Prompt string `json:"prompt" example:"Tell me a joke about llamas."`
	// Optional cap on streamed fragments (lines). 0 means no cap; the
	// process-level token limit still applies.
	// example: 64
	MaxTokens int `json:"max_tokens,omitempty" example:"64"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// Idle workers ready for a prompt.
	// example: 2
	WorkersIdle int `json:"workers_idle" example:"2"`
	// Workers lent to in-flight requests.
	// example: 0
	Busy int `json:"busy" example:"0"`
	// Live workers owned by the pool.
	// example: 2
	Capacity int `json:"capacity" example:"2"`
	// Requests waiting for a worker.
	// example: 0
	Waiting int `json:"waiting" example:"0"`
}

// ModelsResponse wraps the list printed by `lmserv models`.
type ModelsResponse struct {
	Models []Model `json:"models"`
}
