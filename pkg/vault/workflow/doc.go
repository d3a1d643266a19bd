// Package workflow sequences multi-step vault operations.
//
// # Overview
//
// Every mutating operation runs through the same frame: the vault guard is
// acquired, the metadata document is loaded, the policy engine authorizes
// the request, an "attempted" audit entry is appended, the operation's steps
// execute against an in-memory snapshot, the snapshot is committed, affected
// drop-in fragments are restaged, and a terminal "succeeded" entry closes
// the operation. Any step failure reverses the already-applied side effects
// in LIFO order and closes with a "failed" entry instead.
//
// The lifecycle is an explicit state machine,
//
//	Requested -> Authorized -> InProgress -> Committed
//	                     \        \
//	                      +--------+-----> RolledBack
//
// with the two terminal states the only exits. A policy rejection is
// terminal before any side effect. An audit append failure is fatal even
// after every other step succeeded: the operation is rolled back and never
// reported as committed without a durable audit record.
//
// Rollback is best effort. A compensation that itself fails leaves residue
// (typically an orphaned encrypted blob), which is named in the returned
// error so an operator can clean up. Orphaned blobs are inert: nothing
// references them and health checks report them.
package workflow
