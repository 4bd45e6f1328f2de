package view

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/node"
)

// Item is one row of the list view.
type Item struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Health      node.Health `json:"healthStatus"`
	Total       int         `json:"total,omitempty"`
	Alerts      int         `json:"alerts,omitempty"`
	Recent      bool        `json:"recent"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// Items lists every entity of snap in mode, unfiltered and unsorted.
func Items(snap *index.Snapshot, mode Mode) []Item {
	if mode == Nodes {
		recs := snap.Nodes()
		out := make([]Item, 0, len(recs))
		for _, r := range recs {
			out = append(out, Item{ID: r.ID, Label: r.Label(), Health: r.Health, LastUpdated: r.LastUpdated})
		}
		return out
	}
	svcs := snap.Services()
	out := make([]Item, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, Item{
			ID:          s.Name,
			Label:       s.Name,
			Health:      s.Health,
			Total:       s.Total,
			Alerts:      s.Alerts,
			LastUpdated: s.LastUpdated,
		})
	}
	return out
}

// Filter keeps items whose label contains query, ignoring case. An empty
// query keeps everything. The input is not modified.
func Filter(items []Item, query string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if q == "" || strings.Contains(strings.ToLower(it.Label), q) {
			out = append(out, it)
		}
	}
	return out
}

// Sort orders items by label, then id, in place.
func Sort(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Or(cmp.Compare(a.Label, b.Label), cmp.Compare(a.ID, b.ID))
	})
}

// Query is a list request.
type Query struct {
	Mode   Mode
	Filter string
	// Recent marks items as recently changed.
	Recent func(id string) bool
}

// List filters and sorts the entities of snap.
func List(snap *index.Snapshot, q Query) []Item {
	items := Filter(Items(snap, q.Mode), q.Filter)
	Sort(items)
	if q.Recent != nil {
		for i := range items {
			items[i].Recent = q.Recent(items[i].ID)
		}
	}
	return items
}

// Selection resolves selected ids against snap, dropping any that no longer
// exist. Order is preserved.
func Selection(snap *index.Snapshot, mode Mode, ids []string) []string {
	p := Project(snap, mode)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := p.Entity(id); ok {
			out = append(out, id)
		}
	}
	return out
}
