package graph

import (
	"time"

	"github.com/specialistvlad/healthmesh/internal/node"
)

// VisualNode is what the widget draws for one entity.
type VisualNode struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	Border    string `json:"border"`
	Highlight bool   `json:"highlight"`
}

// VisualEdge is a directed dependency from one entity to another.
type VisualEdge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// EdgeID names the edge from -> to.
func EdgeID(from, to string) string {
	return from + "->" + to
}

// NewEdge builds the edge from -> to.
func NewEdge(from, to string) VisualEdge {
	return VisualEdge{ID: EdgeID(from, to), From: from, To: to}
}

// Delta is one batch of drawing operations. Renderers apply the parts in
// field order.
type Delta struct {
	RemovedEdges []string     `json:"removedEdges"`
	RemovedNodes []string     `json:"removedNodes"`
	UpdatedNodes []VisualNode `json:"updatedNodes"`
	UpdatedEdges []VisualEdge `json:"updatedEdges"`
}

// Empty reports whether d draws nothing.
func (d Delta) Empty() bool {
	return len(d.RemovedEdges) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.UpdatedNodes) == 0 && len(d.UpdatedEdges) == 0
}

// Renderer is the drawing API of a graph widget.
type Renderer interface {
	AddOrUpdateNodes(nodes []VisualNode)
	RemoveNodes(ids []string)
	AddOrUpdateEdges(edges []VisualEdge)
	RemoveEdges(ids []string)
	SelectedIDs() []string
	Focus(id string)
	Fit()
}

// Apply sends d to r. Empty parts are skipped.
func Apply(r Renderer, d Delta) {
	if len(d.RemovedEdges) > 0 {
		r.RemoveEdges(d.RemovedEdges)
	}
	if len(d.RemovedNodes) > 0 {
		r.RemoveNodes(d.RemovedNodes)
	}
	if len(d.UpdatedNodes) > 0 {
		r.AddOrUpdateNodes(d.UpdatedNodes)
	}
	if len(d.UpdatedEdges) > 0 {
		r.AddOrUpdateEdges(d.UpdatedEdges)
	}
}

// Entity is the drawable view of one index entry.
type Entity struct {
	ID          string
	Label       string
	Health      node.Health
	// Depends is sorted.
	Depends     []string
	LastUpdated time.Time
}

// Visual projects e into a VisualNode.
func (e Entity) Visual(highlight bool) VisualNode {
	c := e.Health.Colors()
	if highlight {
		c = node.Highlight
	}
	return VisualNode{ID: e.ID, Label: e.Label, Color: c.Background, Border: c.Border, Highlight: highlight}
}

// Source exposes one snapshot to the Publisher.
type Source interface {
	Entity(id string) (Entity, bool)
}
