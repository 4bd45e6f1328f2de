package index

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/healthmesh/internal/aggregate"
	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"github.com/specialistvlad/healthmesh/internal/node"
)

// ErrMalformedDelta is returned when a delta can not be applied. The index is
// left unchanged.
var ErrMalformedDelta = errors.New("index: malformed delta")

// Delta is one batch of changes from the stream.
type Delta struct {
	Removed []string
	Updated map[string]node.Patch
	Added   map[string]node.Patch
}

// Empty reports whether d carries no work.
func (d Delta) Empty() bool {
	return len(d.Removed) == 0 && len(d.Updated) == 0 && len(d.Added) == 0
}

// ChangeSet lists what a delta actually changed. All slices are sorted.
type ChangeSet struct {
	// Nodes holds node ids that were created, changed or removed.
	Nodes []string
	// RemovedNodes is the subset of Nodes that no longer exist.
	RemovedNodes []string
	// Services holds services that were created, removed, or whose rollup
	// differs from before.
	Services []string
	// RemovedServices is the subset of Services that no longer exist.
	RemovedServices []string
	// TouchedServices holds existing services that own at least one changed
	// node, whether or not their rollup moved.
	TouchedServices []string
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Nodes) == 0
}

// Result pairs the snapshots on either side of an Apply.
type Result struct {
	Prev    *Snapshot
	Next    *Snapshot
	Changes ChangeSet
}

// Index owns the current snapshot.
type Index struct {
	current atomic.Pointer[Snapshot]
	clock   clock.Clock
}

// Option configures an Index.
type Option func(*Index)

// WithClock sets the clock used to stamp LastUpdated.
func WithClock(c clock.Clock) Option {
	return func(ix *Index) { ix.clock = c }
}

// New returns an empty index.
func New(opts ...Option) *Index {
	ix := &Index{clock: clock.Real{}}
	for _, opt := range opts {
		opt(ix)
	}
	ix.current.Store(emptySnapshot())
	return ix
}

// Snapshot returns the current snapshot. It is safe to call concurrently with
// Apply.
func (ix *Index) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Reset empties the index and returns the snapshot it replaced.
func (ix *Index) Reset() *Snapshot {
	return ix.current.Swap(emptySnapshot())
}

// Apply applies d and publishes the resulting snapshot.
func (ix *Index) Apply(ctx context.Context, d Delta) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	prev := ix.Snapshot()

	st := &staging{prev: prev, work: map[string]node.Record{}, gone: map[string]struct{}{}, touched: map[string]struct{}{}}
	for _, id := range d.Removed {
		if id == "" {
			return Result{}, fmt.Errorf("%w: empty id in removed", ErrMalformedDelta)
		}
		st.remove(id)
	}
	for _, part := range []struct {
		name    string
		patches map[string]node.Patch
	}{{"updated", d.Updated}, {"added", d.Added}} {
		for _, id := range slices.Sorted(maps.Keys(part.patches)) {
			created, err := st.upsert(id, part.patches[id])
			if err != nil {
				return Result{}, fmt.Errorf("%w: %s %q: %w", ErrMalformedDelta, part.name, id, err)
			}
			if created && part.name == "updated" {
				logger.Debug("Update for unknown id treated as addition.", "id", id)
			}
		}
	}

	next, cs := st.commit(ix.clock.Now())
	if cs.Empty() {
		logger.Debug("Delta produced no changes.")
		return Result{Prev: prev, Next: prev}, nil
	}
	ix.current.Store(next)
	logger.Debug("Delta applied.",
		"nodes_changed", len(cs.Nodes),
		"nodes_removed", len(cs.RemovedNodes),
		"services_changed", len(cs.Services),
	)
	return Result{Prev: prev, Next: next, Changes: cs}, nil
}

// staging overlays pending edits on the previous snapshot.
type staging struct {
	prev    *Snapshot
	work    map[string]node.Record
	gone    map[string]struct{}
	touched map[string]struct{}
}

func (st *staging) lookup(id string) (node.Record, bool) {
	if _, ok := st.gone[id]; ok {
		return node.Record{}, false
	}
	if r, ok := st.work[id]; ok {
		return r, true
	}
	r, ok := st.prev.nodes[id]
	return r, ok
}

func (st *staging) remove(id string) {
	st.gone[id] = struct{}{}
	delete(st.work, id)
	st.touched[id] = struct{}{}
}

func (st *staging) upsert(id string, p node.Patch) (created bool, err error) {
	if id == "" {
		return false, errors.New("empty id")
	}
	cur, ok := st.lookup(id)
	var rec node.Record
	if ok {
		rec, err = cur.Merge(p)
	} else {
		rec, err = node.New(id, p)
	}
	if err != nil {
		return false, err
	}
	st.work[id] = rec
	delete(st.gone, id)
	st.touched[id] = struct{}{}
	return !ok, nil
}

// commit diffs every touched id against the previous snapshot and builds the
// next one. Only ids that differ by content are stamped with now.
func (st *staging) commit(now time.Time) (*Snapshot, ChangeSet) {
	prev := st.prev
	nodes := maps.Clone(prev.nodes)
	owner := maps.Clone(prev.owner)

	var cs ChangeSet
	members := map[string]map[string]node.Record{}
	instancesOf := func(name string) map[string]node.Record {
		if m, ok := members[name]; ok {
			return m
		}
		m := maps.Clone(prev.services[name].Instances)
		if m == nil {
			m = map[string]node.Record{}
		}
		members[name] = m
		return m
	}

	for _, id := range slices.Sorted(maps.Keys(st.touched)) {
		before, hadBefore := prev.nodes[id]
		after, hasAfter := st.lookup(id)

		switch {
		case !hadBefore && !hasAfter:
			continue
		case hadBefore && !hasAfter:
			delete(nodes, id)
			delete(owner, id)
			delete(instancesOf(before.ServiceName), id)
			cs.RemovedNodes = append(cs.RemovedNodes, id)
		case hadBefore && after.Equal(before):
			continue
		default:
			after.LastUpdated = now
			nodes[id] = after
			owner[id] = after.ServiceName
			if hadBefore {
				delete(instancesOf(before.ServiceName), id)
			}
			instancesOf(after.ServiceName)[id] = after
		}
		cs.Nodes = append(cs.Nodes, id)
	}
	if len(cs.Nodes) == 0 {
		return prev, cs
	}

	res := aggregate.Recompute(prev.services, members)
	services := maps.Clone(prev.services)
	for name, svc := range res.Upserted {
		services[name] = svc
	}
	for _, name := range res.Removed {
		delete(services, name)
	}
	cs.Services = res.Changed
	cs.RemovedServices = res.Removed
	for _, name := range slices.Sorted(maps.Keys(members)) {
		if _, ok := services[name]; ok {
			cs.TouchedServices = append(cs.TouchedServices, name)
		}
	}

	return &Snapshot{nodes: nodes, services: services, owner: owner}, cs
}
