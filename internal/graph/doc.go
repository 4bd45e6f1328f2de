// Package graph turns index changes into the minimal set of drawing
// operations for a rendering widget.
//
// # Model
//
// The widget draws VisualNodes and VisualEdges. Both are projections of the
// authoritative records held by the index and are never read back as state:
//
//	┌──────────────┐  prev/next   ┌─────────────┐  Delta   ┌──────────────┐
//	│ index        │─────────────▶│  Publisher  │─────────▶│  Renderer    │
//	│ (snapshots)  │  via Source  │ (edge book) │          │  (widget)    │
//	└──────────────┘              └─────────────┘          └──────────────┘
//
// A Source adapts one snapshot to the entities the widget shows. The same
// Publisher serves both the per-service and the per-instance projection.
//
// # Classification
//
// Publish looks only at the ids it is told to check. Each one lands in
// exactly one bucket:
//
//   - **Added:** present now, absent before. Emits the node, an edge to every
//     dependency, and edges from already drawn entities that depend on it.
//   - **Removed:** present before, absent now. Emits the node id and every
//     drawn edge that touches it.
//   - **Changed:** present in both with a different label, health or
//     dependency set. Emits the node plus edge additions and removals for
//     the symmetric difference of the dependency sets.
//
// # Edges
//
// An edge id is derived from its ordered endpoints (see EdgeID), so a repeated
// computation names the same edge. The Publisher also keeps a book of the
// edges it has drawn; it never removes an edge it did not draw and never
// draws one twice.
//
// # Thread-Safety
//
// A Publisher is not safe for concurrent use. It is owned by the single
// reconciliation loop.
//
// # Key Types
//
// **Renderer** (interface.go): the drawing API implemented by widgets.
//
// **Publisher** (graph.go): computes Deltas and tracks drawn edges.
package graph
