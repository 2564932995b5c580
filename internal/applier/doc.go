// Package applier executes plan artifacts against the file system.
//
// Every action is checked against its plan-time snapshot, journaled as
// pending, performed, then marked applied or failed. The first failure
// stops the run; everything applied before it stays journaled and can be
// undone. Parallel mode runs consecutive actions whose paths and parent
// directories are disjoint concurrently, while journal sequence numbers
// keep following plan order.
package applier
