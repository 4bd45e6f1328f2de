package index

import (
	"maps"
	"slices"

	"github.com/specialistvlad/healthmesh/internal/aggregate"
	"github.com/specialistvlad/healthmesh/internal/node"
)

// Snapshot is an immutable view of the index. Its maps are never written
// after the snapshot is published.
type Snapshot struct {
	nodes    map[string]node.Record
	services map[string]aggregate.Service
	owner    map[string]string
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		nodes:    map[string]node.Record{},
		services: map[string]aggregate.Service{},
		owner:    map[string]string{},
	}
}

// Node returns the record for id.
func (s *Snapshot) Node(id string) (node.Record, bool) {
	r, ok := s.nodes[id]
	return r, ok
}

// Service returns the aggregate for name.
func (s *Snapshot) Service(name string) (aggregate.Service, bool) {
	svc, ok := s.services[name]
	return svc, ok
}

// Owner returns the service that node id belongs to.
func (s *Snapshot) Owner(id string) (string, bool) {
	name, ok := s.owner[id]
	return name, ok
}

// Nodes returns every record ordered by id.
func (s *Snapshot) Nodes() []node.Record {
	out := make([]node.Record, 0, len(s.nodes))
	for _, id := range slices.Sorted(maps.Keys(s.nodes)) {
		out = append(out, s.nodes[id])
	}
	return out
}

// Services returns every aggregate ordered by name.
func (s *Snapshot) Services() []aggregate.Service {
	out := make([]aggregate.Service, 0, len(s.services))
	for _, name := range slices.Sorted(maps.Keys(s.services)) {
		out = append(out, s.services[name])
	}
	return out
}

// NodeCount is the number of instances.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// ServiceCount is the number of aggregates.
func (s *Snapshot) ServiceCount() int { return len(s.services) }

// Empty reports whether the snapshot holds nothing.
func (s *Snapshot) Empty() bool { return len(s.nodes) == 0 }
