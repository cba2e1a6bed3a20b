package worker

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultReversePrompt is passed with -r and marks the end of a response on
// stdout. It is chosen to be unlikely in model output.
const DefaultReversePrompt = "<|LMSERV_USER_INPUT_START|>"

const (
	defaultReadyTimeout       = 60 * time.Second
	defaultRemoteReadyTimeout = 10 * time.Minute
	defaultIdleTimeout        = 2 * time.Second
	defaultFirstOutputTimeout = 30 * time.Second
	defaultInterruptTimeout   = 5 * time.Second
	defaultTerminateTimeout   = 3 * time.Second
	defaultKillTimeout        = 3 * time.Second
	defaultQueueSize          = 1024
	defaultTailLines          = 20

	// readerGrace bounds how long Stop waits for reader goroutines after
	// closing the pipes.
	readerGrace = 2 * time.Second
	// exitTailGrace bounds stderr collection after the process died during
	// the ready wait.
	exitTailGrace = 500 * time.Millisecond
)

// Config describes one llama-cli process. Zero durations and sizes fall back
// to package defaults.
type Config struct {
	// Bin is the llama-cli executable.
	Bin string
	// ModelPath is a local GGUF file passed with -m. Ignored when ModelRepo is set.
	ModelPath string
	// ModelRepo is a remote owner/repo[:variant] passed with -hf.
	ModelRepo string

	CtxSize int
	// GPULayers is passed with -ngl when >= 0.
	GPULayers int
	MainGPU   int
	LoraPath  string
	// ReversePrompt is the end-of-response sentinel. Default DefaultReversePrompt.
	ReversePrompt string
	// MaxTokens is passed with -n when > 0.
	MaxTokens int
	// Grammar is GBNF text passed with --grammar.
	Grammar   string
	ExtraArgs []string
	// Env is appended to the parent environment.
	Env []string

	// ReadyMarkers extend DefaultReadyMarkers.
	ReadyMarkers []string
	// ReadyTimeout bounds Spawn's ready wait. Zero picks 60s for local models
	// and 10m for remote ones, which may download first.
	ReadyTimeout time.Duration

	IdleTimeout        time.Duration
	FirstOutputTimeout time.Duration

	InterruptTimeout time.Duration
	TerminateTimeout time.Duration
	KillTimeout      time.Duration

	// QueueSize is the capacity of the event channel.
	QueueSize int
	// TailLines is how many stderr lines are kept for diagnostics.
	TailLines int

	Logger *zerolog.Logger
}

// Remote reports whether the model is fetched by llama-cli itself.
func (c Config) Remote() bool { return c.ModelRepo != "" }

func (c Config) withDefaults() Config {
	if c.ReversePrompt == "" {
		c.ReversePrompt = DefaultReversePrompt
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
		if c.Remote() {
			c.ReadyTimeout = defaultRemoteReadyTimeout
		}
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.FirstOutputTimeout <= 0 {
		c.FirstOutputTimeout = defaultFirstOutputTimeout
	}
	if c.InterruptTimeout <= 0 {
		c.InterruptTimeout = defaultInterruptTimeout
	}
	if c.TerminateTimeout <= 0 {
		c.TerminateTimeout = defaultTerminateTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = defaultKillTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.TailLines <= 0 {
		c.TailLines = defaultTailLines
	}
	return c
}

// InferOptions tune one turn. Zero values use the worker's Config.
type InferOptions struct {
	// IdleTimeout ends the turn after this much silence once output started.
	IdleTimeout time.Duration
	// FirstOutputTimeout bounds the wait for the first stdout line.
	FirstOutputTimeout time.Duration
	// MaxFragments stops yielding after this many fragments when > 0. The
	// rest of the response is still consumed.
	MaxFragments int
}
