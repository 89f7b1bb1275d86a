package flavors

import (
	"time"

	chanselect "github.com/joeycumines/go-chanselect"
)

// Never is a handle that is never ready and never becomes ready - the
// chanselect analogue of a nil channel in a native select statement.
// Grounded on crossbeam-channel's flavors::never, which exists for exactly
// this purpose: a Select arm that should simply never fire, e.g. a disabled
// timeout branch.
//
// Since it never transitions, Register/Watch need not track anything: there
// is nothing to wake, ever.
type Never struct{}

// NewNever returns a handle that never becomes ready.
func NewNever() Never { return Never{} }

func (Never) TrySelect(*chanselect.Token) bool                { return false }
func (Never) Deadline() (time.Time, bool)                      { return time.Time{}, false }
func (Never) Register(chanselect.Operation, *chanselect.Context) bool { return false }
func (Never) Unregister(chanselect.Operation)                 {}
func (Never) Accept(*chanselect.Token, *chanselect.Context) bool { return false }
func (Never) IsReady() bool                                    { return false }
func (Never) Watch(chanselect.Operation, *chanselect.Context) bool { return false }
func (Never) Unwatch(chanselect.Operation)                     {}
func (Never) State() uint64                                    { return 0 }
