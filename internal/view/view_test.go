package view

import (
	"context"
	"testing"
	"time"

	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *index.Snapshot {
	t.Helper()
	ix := index.New(index.WithClock(clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	p := func(svc, host string, h node.Health, deps ...string) node.Patch {
		return node.Patch{ServiceName: node.Ptr(svc), Host: node.Ptr(host), Health: node.Ptr(h), Depends: &deps}
	}
	_, err := ix.Apply(context.Background(), index.Delta{Updated: map[string]node.Patch{
		"n1": p("Billing", "h1", node.Healthy, "Ledger"),
		"n2": p("Billing", "h2", node.Unhealthy),
		"n3": p("ledger", "h3", node.Healthy),
		"n4": p("Auth", "h4", node.Unknown, "Billing"),
	}})
	require.NoError(t, err)
	return ix.Snapshot()
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("Nodes")
	require.NoError(t, err)
	assert.Equal(t, Nodes, m)

	_, err = ParseMode("graph")
	require.Error(t, err)
}

func TestList_FilterIsCaseInsensitiveAndSorted(t *testing.T) {
	t.Parallel()
	snap := seed(t)

	testCases := []struct {
		name   string
		query  Query
		wantID []string
	}{
		{name: "services unfiltered", query: Query{Mode: Services}, wantID: []string{"Auth", "Billing", "ledger"}},
		{name: "services filtered", query: Query{Mode: Services, Filter: "LEDG"}, wantID: []string{"ledger"}},
		{name: "nodes by label", query: Query{Mode: Nodes, Filter: "billing@"}, wantID: []string{"n1", "n2"}},
		{name: "no match", query: Query{Mode: Nodes, Filter: "zzz"}, wantID: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items := List(snap, tc.query)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tc.wantID, ids)
		})
	}
}

func TestList_MarksRecent(t *testing.T) {
	t.Parallel()
	items := List(seed(t), Query{Mode: Services, Recent: func(id string) bool { return id == "Auth" }})

	require.Len(t, items, 3)
	assert.True(t, items[0].Recent)
	assert.False(t, items[1].Recent)
	assert.Equal(t, 2, items[1].Total)
	assert.Equal(t, 1, items[1].Alerts)
}

func TestProjection_Services(t *testing.T) {
	t.Parallel()
	p := Project(seed(t), Services)

	e, ok := p.Entity("Billing")
	require.True(t, ok)
	assert.Equal(t, node.Unhealthy, e.Health)
	assert.Equal(t, []string{"Ledger"}, e.Depends)
	assert.Len(t, p.Entities(), 3)

	_, ok = p.Entity("n1")
	assert.False(t, ok, "node ids are not entities in the service view")
}

func TestProjection_Nodes(t *testing.T) {
	t.Parallel()
	p := Project(seed(t), Nodes)

	e, ok := p.Entity("n2")
	require.True(t, ok)
	assert.Equal(t, "Billing@h2", e.Label)
	assert.Equal(t, []string{}, e.Depends)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	snap := seed(t)

	svc, ok := Describe(snap, Services, "Billing")
	require.True(t, ok)
	require.Len(t, svc.Instances, 2)
	assert.Equal(t, "n1", svc.Instances[0].ID)

	_, ok = Describe(snap, Nodes, "Billing")
	assert.False(t, ok)
}

func TestChangedAndFlashing(t *testing.T) {
	t.Parallel()
	cs := index.ChangeSet{
		Nodes:           []string{"n1", "n2"},
		RemovedNodes:    []string{"n2"},
		Services:        []string{"a"},
		TouchedServices: []string{"a", "b"},
	}

	changed, removed := Changed(cs, Nodes)
	assert.Equal(t, []string{"n1", "n2"}, changed)
	assert.Equal(t, []string{"n2"}, removed)
	assert.Equal(t, []string{"n1"}, Flashing(cs, Nodes))
	assert.Equal(t, []string{"a", "b"}, Flashing(cs, Services))
}

func TestSelection(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"Auth"}, Selection(seed(t), Services, []string{"gone", "Auth"}))
}
