// Package view holds read-side projections over index snapshots: the entity
// view handed to the graph publisher, and the filtered, sorted list shown
// next to the graph. Nothing here mutates a snapshot.
package view

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/specialistvlad/healthmesh/internal/graph"
	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/node"
)

// Mode selects which entities are drawn.
type Mode string

const (
	// Services draws one entity per service aggregate.
	Services Mode = "services"
	// Nodes draws one entity per instance.
	Nodes Mode = "nodes"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case Services, Nodes:
		return m, nil
	}
	return "", fmt.Errorf("unknown view mode %q: must be 'services' or 'nodes'", s)
}

// Projection is a graph.Source over one snapshot.
type Projection struct {
	snap *index.Snapshot
	mode Mode
}

// Project returns the projection of snap in mode.
func Project(snap *index.Snapshot, mode Mode) Projection {
	return Projection{snap: snap, mode: mode}
}

// Entity implements graph.Source.
func (p Projection) Entity(id string) (graph.Entity, bool) {
	if p.mode == Nodes {
		r, ok := p.snap.Node(id)
		if !ok {
			return graph.Entity{}, false
		}
		return nodeEntity(r), true
	}
	svc, ok := p.snap.Service(id)
	if !ok {
		return graph.Entity{}, false
	}
	return graph.Entity{
		ID:          svc.Name,
		Label:       svc.Name,
		Health:      svc.Health,
		Depends:     svc.Depends,
		LastUpdated: svc.LastUpdated,
	}, true
}

// LastUpdated implements flash.Source.
func (p Projection) LastUpdated(id string) (time.Time, bool) {
	e, ok := p.Entity(id)
	return e.LastUpdated, ok
}

// Entities returns every drawable entity ordered by id.
func (p Projection) Entities() []graph.Entity {
	if p.mode == Nodes {
		recs := p.snap.Nodes()
		out := make([]graph.Entity, 0, len(recs))
		for _, r := range recs {
			out = append(out, nodeEntity(r))
		}
		return out
	}
	svcs := p.snap.Services()
	out := make([]graph.Entity, 0, len(svcs))
	for _, svc := range svcs {
		e, _ := p.Entity(svc.Name)
		out = append(out, e)
	}
	return out
}

// Changed picks the ids a change set invalidates in mode.
func Changed(cs index.ChangeSet, mode Mode) (changed, removed []string) {
	if mode == Nodes {
		return cs.Nodes, cs.RemovedNodes
	}
	return cs.Services, cs.RemovedServices
}

// Flashing picks the ids to highlight after a change set in mode. In the
// service view a service flashes when any of its instances changed, even if
// its rollup did not.
func Flashing(cs index.ChangeSet, mode Mode) []string {
	if mode == Nodes {
		return difference(cs.Nodes, cs.RemovedNodes)
	}
	return cs.TouchedServices
}

func nodeEntity(r node.Record) graph.Entity {
	deps := r.Depends
	if deps == nil {
		deps = []string{}
	}
	return graph.Entity{
		ID:          r.ID,
		Label:       r.Label(),
		Health:      r.Health,
		Depends:     deps,
		LastUpdated: r.LastUpdated,
	}
}

func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
