package graph

import (
	"maps"
	"slices"
)

// Publisher computes visual deltas between snapshots and remembers what it
// has drawn.
type Publisher struct {
	nodes map[string]struct{}
	edges map[string]VisualEdge
	// touching indexes drawn edge ids by both endpoints.
	touching map[string]map[string]struct{}
	// depends holds the Depends each drawn node was last drawn with and
	// dependents inverts it, target to drawn sources.
	depends    map[string][]string
	dependents map[string]map[string]struct{}
}

// NewPublisher returns a Publisher with nothing drawn.
func NewPublisher() *Publisher {
	return &Publisher{
		nodes:      map[string]struct{}{},
		edges:      map[string]VisualEdge{},
		touching:   map[string]map[string]struct{}{},
		depends:    map[string][]string{},
		dependents: map[string]map[string]struct{}{},
	}
}

// NodeCount is the number of drawn nodes.
func (p *Publisher) NodeCount() int { return len(p.nodes) }

// EdgeCount is the number of drawn edges.
func (p *Publisher) EdgeCount() int { return len(p.edges) }

// Publish classifies every id in check against prev and next and returns the
// drawing operations that move the widget from one to the other.
func (p *Publisher) Publish(check []string, prev, next Source) Delta {
	ids := slices.Clone(check)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var d Delta
	removed := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := next.Entity(id); ok {
			continue
		}
		_, had := prev.Entity(id)
		_, drawn := p.nodes[id]
		if had || drawn {
			removed[id] = struct{}{}
			d.RemovedNodes = append(d.RemovedNodes, id)
		}
	}
	for _, id := range d.RemovedNodes {
		d.RemovedEdges = append(d.RemovedEdges, p.dropTouching(id)...)
		p.untrack(id)
		delete(p.nodes, id)
	}

	addEdge := func(e VisualEdge) {
		if _, drawn := p.edges[e.ID]; drawn {
			return
		}
		if _, gone := removed[e.From]; gone {
			return
		}
		if _, gone := removed[e.To]; gone {
			return
		}
		p.putEdge(e)
		d.UpdatedEdges = append(d.UpdatedEdges, e)
	}

	for _, id := range ids {
		cur, ok := next.Entity(id)
		if !ok {
			continue
		}
		before, had := prev.Entity(id)
		if _, drawn := p.nodes[id]; !had || !drawn {
			p.nodes[id] = struct{}{}
			p.track(id, cur.Depends)
			d.UpdatedNodes = append(d.UpdatedNodes, cur.Visual(false))
			for _, dep := range cur.Depends {
				addEdge(NewEdge(id, dep))
			}
			for _, src := range slices.Sorted(maps.Keys(p.dependents[id])) {
				addEdge(NewEdge(src, id))
			}
			continue
		}
		if before.Label == cur.Label && before.Health == cur.Health && slices.Equal(before.Depends, cur.Depends) {
			continue
		}
		p.track(id, cur.Depends)
		d.UpdatedNodes = append(d.UpdatedNodes, cur.Visual(false))
		for _, dep := range difference(before.Depends, cur.Depends) {
			eid := EdgeID(id, dep)
			if _, drawn := p.edges[eid]; drawn {
				p.dropEdge(eid)
				d.RemovedEdges = append(d.RemovedEdges, eid)
			}
		}
		for _, dep := range difference(cur.Depends, before.Depends) {
			addEdge(NewEdge(id, dep))
		}
	}
	return d
}

// Reset forgets everything drawn and returns the delta that erases it.
func (p *Publisher) Reset() Delta {
	d := Delta{
		RemovedEdges: slices.Sorted(maps.Keys(p.edges)),
		RemovedNodes: slices.Sorted(maps.Keys(p.nodes)),
	}
	p.nodes = map[string]struct{}{}
	p.edges = map[string]VisualEdge{}
	p.touching = map[string]map[string]struct{}{}
	p.depends = map[string][]string{}
	p.dependents = map[string]map[string]struct{}{}
	return d
}

// track records deps as the dependencies drawn for id.
func (p *Publisher) track(id string, deps []string) {
	p.untrack(id)
	p.depends[id] = slices.Clone(deps)
	for _, dep := range deps {
		if p.dependents[dep] == nil {
			p.dependents[dep] = map[string]struct{}{}
		}
		p.dependents[dep][id] = struct{}{}
	}
}

func (p *Publisher) untrack(id string) {
	for _, dep := range p.depends[id] {
		delete(p.dependents[dep], id)
		if len(p.dependents[dep]) == 0 {
			delete(p.dependents, dep)
		}
	}
	delete(p.depends, id)
}

func (p *Publisher) putEdge(e VisualEdge) {
	p.edges[e.ID] = e
	for _, end := range []string{e.From, e.To} {
		if p.touching[end] == nil {
			p.touching[end] = map[string]struct{}{}
		}
		p.touching[end][e.ID] = struct{}{}
	}
}

func (p *Publisher) dropEdge(id string) {
	e, ok := p.edges[id]
	if !ok {
		return
	}
	delete(p.edges, id)
	for _, end := range []string{e.From, e.To} {
		delete(p.touching[end], id)
		if len(p.touching[end]) == 0 {
			delete(p.touching, end)
		}
	}
}

func (p *Publisher) dropTouching(id string) []string {
	ids := slices.Sorted(maps.Keys(p.touching[id]))
	for _, eid := range ids {
		p.dropEdge(eid)
	}
	return ids
}

// difference returns the members of a missing from b. Both are sorted.
func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if _, found := slices.BinarySearch(b, v); !found {
			out = append(out, v)
		}
	}
	return out
}
