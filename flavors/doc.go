// Package flavors provides a reference set of channel implementations
// satisfying [chanselect.SelectHandle], so the core driver in the parent
// package is reachable and testable end to end.
//
// spec.md scopes these out of the CORE ("the specific channel
// implementations (array/bounded, list/unbounded, zero/rendezvous, never,
// tick, after) are Non-goals for this module; only the trait/interface they
// must implement is in scope"), the same way crossbeam-channel ships
// select.rs alongside, but decoupled from, its sibling flavor modules
// (flavors::array, flavors::list, flavors::zero, flavors::never,
// flavors::tick, flavors::after). This package is that sibling: supplemental,
// not core.
package flavors
