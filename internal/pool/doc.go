// Package pool hands out WebDriver sessions from a bounded set of drivers.
//
// The pool has two levels. [Controller] is a generic factory-backed pool
// that bounds how many resources exist; a [BridgeController] uses it with
// [SessionCache] resources, one per driver process, so the outer bound is
// the number of driver processes. Each driver's Concurrency then bounds how
// many sessions it hosts at once.
//
// [Pool] is the entry point. A released session stays open on its driver
// and is handed to the next caller; the [ResetPolicy] decides whether its
// browser state is cleared first.
//
// # Concurrency
//
// All controller state is guarded by one mutex, and blocked callers wait on
// a sync.Cond. When capacity frees, some waiter proceeds; there is no FIFO
// guarantee. Close wakes every waiter with errors.ErrPoolClosed.
package pool
