package view

import (
	"encoding/json"
	"time"

	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/node"
)

// Detail is the full description of one entity for the detail pane.
type Detail struct {
	ID                     string          `json:"id"`
	Label                  string          `json:"label"`
	Health                 node.Health     `json:"healthStatus"`
	ServiceName            string          `json:"serviceName,omitempty"`
	Host                   string          `json:"host,omitempty"`
	Depends                []string        `json:"depends"`
	LastUpdated            time.Time       `json:"lastUpdated"`
	LastPollInstant        *time.Time      `json:"lastPollInstant,omitempty"`
	LastPollDurationMillis *int64          `json:"lastPollDurationMillis,omitempty"`
	LastPollResult         json.RawMessage `json:"lastPollResult,omitempty"`
	Total                  int             `json:"total,omitempty"`
	Alerts                 int             `json:"alerts,omitempty"`
	Instances              []Detail        `json:"instances,omitempty"`
}

// Describe looks up id in snap. In the service view the instances are
// included, ordered by id.
func Describe(snap *index.Snapshot, mode Mode, id string) (Detail, bool) {
	if mode == Nodes {
		r, ok := snap.Node(id)
		if !ok {
			return Detail{}, false
		}
		return describeNode(r), true
	}
	svc, ok := snap.Service(id)
	if !ok {
		return Detail{}, false
	}
	d := Detail{
		ID:          svc.Name,
		Label:       svc.Name,
		Health:      svc.Health,
		Depends:     svc.Depends,
		LastUpdated: svc.LastUpdated,
		Total:       svc.Total,
		Alerts:      svc.Alerts,
	}
	for _, iid := range svc.InstanceIDs() {
		d.Instances = append(d.Instances, describeNode(svc.Instances[iid]))
	}
	return d, true
}

func describeNode(r node.Record) Detail {
	d := Detail{
		ID:              r.ID,
		Label:           r.Label(),
		Health:          r.Health,
		ServiceName:     r.ServiceName,
		Host:            r.Host,
		Depends:         r.Depends,
		LastUpdated:     r.LastUpdated,
		LastPollInstant: r.LastPollInstant,
		LastPollResult:  json.RawMessage(r.LastPollResult),
	}
	if d.Depends == nil {
		d.Depends = []string{}
	}
	if r.LastPollDuration != nil {
		ms := r.LastPollDuration.Milliseconds()
		d.LastPollDurationMillis = &ms
	}
	return d
}

// Status is the summary shown in the status bar.
type Status struct {
	Nodes      int    `json:"nodeCount"`
	Edges      int    `json:"edgeCount"`
	Connection string `json:"socketState"`
	UserCount  int    `json:"userCount"`
}
