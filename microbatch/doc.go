// Package microbatch groups tasks into small batches, e.g. to reduce the
// number of round trips. Both Batcher (one fixed job source) and
// FanInBatcher (a dynamic set of [FanInSource] job sources) drive their
// internal control loop with [chanselect.Select] rather than a native Go
// select statement, so the same facility handles both the fixed-arity and
// dynamic-arity case.
//
// See also [github.com/joeycumines/go-chanselect/longpoll], for a similar,
// lower-level implementation, e.g. if you require more control over the
// batching or concurrency behavior.
package microbatch
