// Package reconcile drives the whole pipeline from one goroutine.
//
// # Flow
//
//	transport.Event
//	      │
//	      ▼
//	 wire.Classify ──► presence ──► user count
//	      │
//	      ▼ delta
//	 index.Apply ──► ChangeSet ──► view.Project (prev, next)
//	                      │                │
//	                      ▼                ▼
//	               flash.Observe     graph.Publisher.Publish
//	                      │                │
//	                      └──── highlight ─┴──► graph.Renderer
//
// Every Connected event resets the index, the publisher and the flash set,
// and erases whatever the renderer has drawn. The upstream replays the full
// topology after connect, so the first delta afterwards also triggers a Fit.
//
// # Concurrency
//
// Run is the single consumer of the transport's event stream and the only
// writer. Flash sweeps are timers that post back onto the same loop, so no
// state is ever mutated from two goroutines. Readers use Snapshot, which
// returns the current immutable index snapshot without blocking the loop.
package reconcile
