// Package aggregate derives service-level rollups from instance records.
//
// A Service is never edited directly. It is always rebuilt from its current
// instance map by Build, so Total, Alerts, Health and Depends can not drift
// from the instances they summarise.
package aggregate

import (
	"maps"
	"slices"
	"time"

	"github.com/specialistvlad/healthmesh/internal/node"
)

// Service is the rollup of every instance that reports the same service name.
type Service struct {
	Name    string
	Total   int
	Alerts  int
	Health  node.Health
	Depends []string
	// LastUpdated is the most recent LastUpdated among the instances.
	LastUpdated time.Time
	Instances   map[string]node.Record
}

// Build computes the rollup for name from instances. The map is retained as
// is; callers hand over ownership.
func Build(name string, instances map[string]node.Record) Service {
	s := Service{
		Name:      name,
		Total:     len(instances),
		Health:    node.Unknown,
		Instances: instances,
	}
	var deps []string
	for _, inst := range instances {
		if inst.Health != node.Healthy {
			s.Alerts++
		}
		switch {
		case inst.Health == node.Unhealthy:
			s.Health = node.Unhealthy
		case inst.Health == node.Healthy && s.Health != node.Unhealthy:
			s.Health = node.Healthy
		}
		deps = append(deps, inst.Depends...)
		if inst.LastUpdated.After(s.LastUpdated) {
			s.LastUpdated = inst.LastUpdated
		}
	}
	s.Depends = node.NormalizeDepends(deps)
	return s
}

// SameRollup compares only the summarised fields. Two services whose
// instances differ in poll details but roll up identically are the same.
func (s Service) SameRollup(o Service) bool {
	return s.Name == o.Name &&
		s.Total == o.Total &&
		s.Alerts == o.Alerts &&
		s.Health == o.Health &&
		slices.Equal(s.Depends, o.Depends)
}

// InstanceIDs returns the sorted ids of the instances.
func (s Service) InstanceIDs() []string {
	return slices.Sorted(maps.Keys(s.Instances))
}

// Result is the outcome of Recompute.
type Result struct {
	// Upserted holds every rebuilt service that still has instances.
	Upserted map[string]Service
	// Removed lists services whose instance map became empty.
	Removed []string
	// Changed lists services created, removed, or whose rollup differs.
	Changed []string
}

// Recompute rebuilds the services named in members. members maps each
// affected service to its complete new instance map; an empty map removes the
// service. prev is consulted only for comparison.
func Recompute(prev map[string]Service, members map[string]map[string]node.Record) Result {
	res := Result{Upserted: make(map[string]Service, len(members))}
	for _, name := range slices.Sorted(maps.Keys(members)) {
		old, existed := prev[name]
		instances := members[name]
		if len(instances) == 0 {
			if existed {
				res.Removed = append(res.Removed, name)
				res.Changed = append(res.Changed, name)
			}
			continue
		}
		svc := Build(name, instances)
		res.Upserted[name] = svc
		if !existed || !old.SameRollup(svc) {
			res.Changed = append(res.Changed, name)
		}
	}
	return res
}
