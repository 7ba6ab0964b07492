// Package engine implements the core of the multi-channel square-wave
// frequency generator: the frequency solver, the symbol encoder, the GPIO
// and channel resource arbiter, and the generator lifecycle that composes
// them. It owns no package-level mutable state — every stateful piece
// (the GPIO pool, the channel pool) lives inside an *Engine value the
// caller threads through the API.
package engine
