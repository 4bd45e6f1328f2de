// Package render holds the graph.Renderer implementations: an in-memory
// dataset that backs the HTTP API, a socket.io broadcaster for browser
// widgets, and a fan-out that drives several renderers at once.
package render

import (
	"slices"
	"strings"
	"sync"

	"github.com/specialistvlad/healthmesh/internal/graph"
)

// Dataset is a point-in-time copy of what a renderer has drawn.
type Dataset struct {
	Nodes []graph.VisualNode `json:"nodes"`
	Edges []graph.VisualEdge `json:"edges"`
}

// Memory keeps the drawn graph in maps. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	nodes    map[string]graph.VisualNode
	edges    map[string]graph.VisualEdge
	selected []string
	focused  string
	fits     int
}

var _ graph.Renderer = (*Memory)(nil)

// NewMemory returns an empty Memory renderer.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]graph.VisualNode),
		edges: make(map[string]graph.VisualEdge),
	}
}

func (m *Memory) AddOrUpdateNodes(nodes []graph.VisualNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
}

func (m *Memory) RemoveNodes(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.nodes, id)
	}
	m.selected = slices.DeleteFunc(m.selected, func(id string) bool { return slices.Contains(ids, id) })
}

func (m *Memory) AddOrUpdateEdges(edges []graph.VisualEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.edges[e.ID] = e
	}
}

func (m *Memory) RemoveEdges(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.edges, id)
	}
}

// SelectedIDs returns the current selection in the order it was made.
func (m *Memory) SelectedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.selected)
}

// Focus records id as the focused node. Unknown ids are ignored.
func (m *Memory) Focus(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; ok {
		m.focused = id
	}
}

func (m *Memory) Fit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fits++
}

// Select replaces the selection. Ids that are not drawn are dropped.
func (m *Memory) Select(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = m.selected[:0]
	for _, id := range ids {
		if _, ok := m.nodes[id]; ok && !slices.Contains(m.selected, id) {
			m.selected = append(m.selected, id)
		}
	}
}

// Focused returns the last focused id, or "" when none.
func (m *Memory) Focused() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.focused
}

// Fits returns how many times Fit has been called.
func (m *Memory) Fits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fits
}

// Node returns the drawn node id.
func (m *Memory) Node(id string) (graph.VisualNode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok
}

// NodeCount returns the number of drawn nodes.
func (m *Memory) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// EdgeCount returns the number of drawn edges.
func (m *Memory) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

// Dataset returns the drawn graph sorted by id.
func (m *Memory) Dataset() Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds := Dataset{
		Nodes: make([]graph.VisualNode, 0, len(m.nodes)),
		Edges: make([]graph.VisualEdge, 0, len(m.edges)),
	}
	for _, n := range m.nodes {
		ds.Nodes = append(ds.Nodes, n)
	}
	for _, e := range m.edges {
		ds.Edges = append(ds.Edges, e)
	}
	slices.SortFunc(ds.Nodes, func(a, b graph.VisualNode) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(ds.Edges, func(a, b graph.VisualEdge) int { return strings.Compare(a.ID, b.ID) })
	return ds
}
