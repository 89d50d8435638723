package compiler

import "runtime/debug"

// strictMode turns memory faults into recoverable panics until the returned function runs.
// Together with the recover at the package boundary this keeps a faulting package from
// leaving the run in a silent partial state.
func strictMode() (restore func()) {
	previous := debug.SetPanicOnFault(true)
	return func() { debug.SetPanicOnFault(previous) }
}
