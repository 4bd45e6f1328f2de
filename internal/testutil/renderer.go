package testutil

import (
	"maps"
	"slices"
	"sync"

	"github.com/specialistvlad/healthmesh/internal/graph"
)

// Call is one recorded Renderer invocation.
type Call struct {
	Method string
	IDs    []string
	Nodes  []graph.VisualNode
	Edges  []graph.VisualEdge
}

// FakeRenderer records every call and keeps the resulting drawing.
type FakeRenderer struct {
	mu       sync.Mutex
	calls    []Call
	nodes    map[string]graph.VisualNode
	edges    map[string]graph.VisualEdge
	Selected []string
}

// NewFakeRenderer returns an empty FakeRenderer.
func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{nodes: map[string]graph.VisualNode{}, edges: map[string]graph.VisualEdge{}}
}

func (r *FakeRenderer) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *FakeRenderer) AddOrUpdateNodes(nodes []graph.VisualNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "AddOrUpdateNodes", Nodes: slices.Clone(nodes)})
	for _, n := range nodes {
		r.nodes[n.ID] = n
	}
}

func (r *FakeRenderer) RemoveNodes(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "RemoveNodes", IDs: slices.Clone(ids)})
	for _, id := range ids {
		delete(r.nodes, id)
	}
}

func (r *FakeRenderer) AddOrUpdateEdges(edges []graph.VisualEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "AddOrUpdateEdges", Edges: slices.Clone(edges)})
	for _, e := range edges {
		r.edges[e.ID] = e
	}
}

func (r *FakeRenderer) RemoveEdges(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "RemoveEdges", IDs: slices.Clone(ids)})
	for _, id := range ids {
		delete(r.edges, id)
	}
}

func (r *FakeRenderer) SelectedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.Selected)
}

func (r *FakeRenderer) Focus(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "Focus", IDs: []string{id}})
}

func (r *FakeRenderer) Fit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Method: "Fit"})
}

// Calls returns a copy of the recorded calls.
func (r *FakeRenderer) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Methods returns the recorded method names in order.
func (r *FakeRenderer) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Method)
	}
	return out
}

// Reset forgets recorded calls but keeps the drawing.
func (r *FakeRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Node returns the drawn node with id.
func (r *FakeRenderer) Node(id string) (graph.VisualNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	return n, ok
}

// NodeIDs returns the drawn node ids, sorted.
func (r *FakeRenderer) NodeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.nodes))
}

// EdgeIDs returns the drawn edge ids, sorted.
func (r *FakeRenderer) EdgeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.edges))
}
