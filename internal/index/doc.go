// Package index is the authoritative, in-memory state of the health mesh.
//
// # Model
//
// The index holds three views of the same data inside one immutable Snapshot:
//
//   - nodes: every instance record keyed by node id
//   - services: one aggregate.Service per service name, rebuilt from its
//     instances whenever one of them changes
//   - owner: the reverse index from node id to service name
//
// A node id appears in owner exactly when it appears in the Instances map of
// the service owner names. Apply maintains this on every path, including a
// node that moves from one service to another.
//
// # Applying deltas
//
// Apply consumes a Delta in a fixed order: removals, then updates, then
// additions. Updates and additions are both upserts. A patch merges into the
// existing record; an unknown id is created from the patch and must name its
// service. An id that is removed and re-added in the same delta starts from
// an empty record rather than merging into the removed one.
//
// All validation happens before the new snapshot is published. A malformed
// delta leaves the current snapshot untouched and returns ErrMalformedDelta.
//
// The ChangeSet returned by Apply is exact. Touched ids whose records are
// equal by content before and after the delta are excluded and keep their
// previous LastUpdated, which makes replaying a delta a no-op.
//
// # Concurrency
//
// Apply is meant to be called from a single goroutine. Readers call Snapshot
// from any goroutine and get a consistent, immutable view without locking;
// the writer swaps the snapshot pointer atomically.
package index
