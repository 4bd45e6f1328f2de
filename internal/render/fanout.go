package render

import "github.com/specialistvlad/healthmesh/internal/graph"

// Fanout drives several renderers in order. Selection is read from the first.
type Fanout []graph.Renderer

var _ graph.Renderer = Fanout(nil)

func (f Fanout) AddOrUpdateNodes(nodes []graph.VisualNode) {
	for _, r := range f {
		r.AddOrUpdateNodes(nodes)
	}
}

func (f Fanout) RemoveNodes(ids []string) {
	for _, r := range f {
		r.RemoveNodes(ids)
	}
}

func (f Fanout) AddOrUpdateEdges(edges []graph.VisualEdge) {
	for _, r := range f {
		r.AddOrUpdateEdges(edges)
	}
}

func (f Fanout) RemoveEdges(ids []string) {
	for _, r := range f {
		r.RemoveEdges(ids)
	}
}

func (f Fanout) SelectedIDs() []string {
	if len(f) == 0 {
		return nil
	}
	return f[0].SelectedIDs()
}

func (f Fanout) Focus(id string) {
	for _, r := range f {
		r.Focus(id)
	}
}

func (f Fanout) Fit() {
	for _, r := range f {
		r.Fit()
	}
}
