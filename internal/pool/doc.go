// Package pool keeps a fixed number of spawned workers and lends them out one
// caller at a time.
//
// Acquire is strictly first-come first-served: a released worker goes to the
// oldest waiter before it ever reaches the free list. A worker found dead on
// Release is replaced in the same critical section that drops it, so
// free+busy never dips below capacity unless a replacement fails to spawn.
package pool
