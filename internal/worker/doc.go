// Package worker supervises one interactive llama-cli process and drives its
// turn-based text protocol.
//
// Files by concern:
//
//   - event.go: tagged stream events and the control signal.
//   - multiplexer.go: one reader goroutine per standard stream, all feeding a
//     single ordered channel.
//   - config.go: Config, InferOptions and package defaults.
//   - args.go: llama-cli argument vector.
//   - ready.go: recognised "model loaded, awaiting input" banners.
//   - worker.go: Worker type, Spawn and the ready wait.
//   - infer.go: one prompt/response turn as a lazy fragment sequence.
//   - stop.go: graceful-then-forced teardown.
//   - errors.go: StartupError and predicates.
//   - metrics.go: Prometheus collectors.
//
// A Worker assumes a single caller at a time: one writer to stdin and one
// reader of the event channel. Exclusivity is the pool's job.
package worker
