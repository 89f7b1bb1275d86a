// Package longpoll supports batching, e.g. receiving as many values as
// possible from a [Source], generalized from a native receive-only channel
// to any [github.com/joeycumines/go-chanselect] flavor (bounded, unbounded,
// or a custom SelectHandle).
//
// See also [github.com/joeycumines/go-chanselect/microbatch], for a
// higher-level implementation, with built-in concurrency control, and
// support for batched request/response patterns.
package longpoll
