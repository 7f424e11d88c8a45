// Package process supervises browser-driver processes.
//
// Each driver binary is started with [Spawn] as the leader of its own process
// group. Drivers routinely fork the browser they control, so termination is
// always delivered to the group rather than the leader alone: [Group.Close]
// sends SIGINT, waits for a bounded grace period, escalates to SIGKILL, and
// then reaps whatever is left in the group.
//
// A background goroutine waits on the leader. If the leader exits before
// Close is called the exit is logged and the group is closed automatically,
// so owners observing [Group.Done] are never left waiting.
package process
