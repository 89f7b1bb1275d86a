// Package pacer paces a repeating event to at most one occurrence per
// interval.
//
// Adapted down from catrate, the original module's multi-category,
// multi-rate sliding-window limiter (map[time.Duration]int rates, a
// sync.Map of per-category state, a background cleanup worker, and a
// sync.Pool of category buffers - see the original catrate/limiter.go,
// catrate/events.go and catrate/rates.go). [flavors.Tick] only ever needs
// one window, one caller and always-serialized calls (refreshLocked runs
// under Tick.mu), so none of that multi-tenancy earns its keep here: a
// Pacer tracks a single window's worth of state directly, with no
// category key, no locking of its own (the caller already serializes
// access) and no background goroutine.
package pacer
