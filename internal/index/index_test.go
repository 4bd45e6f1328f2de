package index

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/healthmesh/internal/aggregate"
	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestIndex(t *testing.T) (*Index, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	return New(WithClock(clk)), clk
}

func create(svc, host string, h node.Health, deps ...string) node.Patch {
	p := node.Patch{ServiceName: node.Ptr(svc), Host: node.Ptr(host), Health: node.Ptr(h)}
	if deps != nil {
		p.Depends = &deps
	}
	return p
}

// requireConsistent checks the reverse index against service membership and
// every aggregate against its instances.
func requireConsistent(t *testing.T, s *Snapshot) {
	t.Helper()
	seen := 0
	for name, svc := range s.services {
		require.NotEmpty(t, svc.Instances, "service %q must not be empty", name)
		require.Equal(t, len(svc.Instances), svc.Total)
		want := aggregate.Build(name, svc.Instances)
		require.True(t, want.SameRollup(svc), "service %q rollup drifted", name)
		for id, inst := range svc.Instances {
			owner, ok := s.owner[id]
			require.True(t, ok, "node %q missing from reverse index", id)
			require.Equal(t, name, owner)
			require.True(t, inst.Equal(s.nodes[id]))
			seen++
		}
	}
	require.Len(t, s.owner, seen)
	require.Len(t, s.nodes, seen)
}

func TestApply_EndToEndServiceLifecycle(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	// --- Act: add ---
	res, err := ix.Apply(ctx, Delta{Added: map[string]node.Patch{
		"n1": create("svcA", "h1", node.Healthy),
	}})
	require.NoError(t, err)

	// --- Assert ---
	svc, ok := ix.Snapshot().Service("svcA")
	require.True(t, ok)
	assert.Equal(t, 1, svc.Total)
	assert.Equal(t, 0, svc.Alerts)
	assert.Equal(t, node.Healthy, svc.Health)
	assert.Equal(t, []string{"svcA"}, res.Changes.Services)
	requireConsistent(t, ix.Snapshot())

	// --- Act: remove ---
	res, err = ix.Apply(ctx, Delta{Removed: []string{"n1"}})
	require.NoError(t, err)

	// --- Assert ---
	assert.True(t, ix.Snapshot().Empty())
	assert.Equal(t, 0, ix.Snapshot().ServiceCount())
	assert.Equal(t, []string{"svcA"}, res.Changes.RemovedServices)
	assert.Equal(t, []string{"n1"}, res.Changes.RemovedNodes)
	_, ok = res.Prev.Service("svcA")
	assert.True(t, ok, "previous snapshot is untouched")
	requireConsistent(t, ix.Snapshot())
}

func TestApply_PartialMergeKeepsDepends(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{
		"n1": create("svcA", "h1", node.Healthy, "a", "b"),
	}})
	require.NoError(t, err)

	_, err = ix.Apply(ctx, Delta{Updated: map[string]node.Patch{
		"n1": {Health: node.Ptr(node.Unhealthy)},
	}})
	require.NoError(t, err)

	rec, ok := ix.Snapshot().Node("n1")
	require.True(t, ok)
	assert.Equal(t, node.Unhealthy, rec.Health)
	assert.Equal(t, []string{"a", "b"}, rec.Depends)
	assert.Equal(t, "h1", rec.Host)
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()
	ix, clk := newTestIndex(t)
	ctx := context.Background()
	d := Delta{Updated: map[string]node.Patch{
		"n1": create("svcA", "h1", node.Healthy, "x"),
		"n2": create("svcB", "h2", node.Unknown),
	}}

	first, err := ix.Apply(ctx, d)
	require.NoError(t, err)
	require.Equal(t, []string{"n1", "n2"}, first.Changes.Nodes)
	once := ix.Snapshot()

	clk.Advance(time.Minute)
	second, err := ix.Apply(ctx, d)
	require.NoError(t, err)

	assert.True(t, second.Changes.Empty(), "changed-set: %+v", second.Changes)
	assert.Same(t, once, ix.Snapshot(), "no new snapshot is published")
	rec, _ := ix.Snapshot().Node("n1")
	assert.Equal(t, t0, rec.LastUpdated, "unchanged records keep their stamp")
}

func TestApply_PollRefreshCoalescesServiceChange(t *testing.T) {
	t.Parallel()
	ix, clk := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{"n1": create("svcA", "h1", node.Healthy)}})
	require.NoError(t, err)

	at := clk.Advance(time.Second)
	res, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{
		"n1": {LastPollResult: []byte(`{"status":200}`), LastPollInstant: node.Ptr(at)},
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"n1"}, res.Changes.Nodes)
	assert.Empty(t, res.Changes.Services, "rollup did not move")
	assert.Equal(t, []string{"svcA"}, res.Changes.TouchedServices)
	svc, _ := ix.Snapshot().Service("svcA")
	assert.Equal(t, []byte(`{"status":200}`), svc.Instances["n1"].LastPollResult)
	assert.Equal(t, at, svc.LastUpdated)
}

func TestApply_RemoveAndAddIsRecreation(t *testing.T) {
	t.Parallel()
	ix, clk := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{"n1": create("svcA", "h1", node.Healthy, "x")}})
	require.NoError(t, err)

	clk.Advance(time.Second)
	res, err := ix.Apply(ctx, Delta{
		Removed: []string{"n1"},
		Added:   map[string]node.Patch{"n1": {ServiceName: node.Ptr("svcA")}},
	})
	require.NoError(t, err)

	rec, ok := ix.Snapshot().Node("n1")
	require.True(t, ok)
	assert.Equal(t, node.Unknown, rec.Health, "nothing is merged from the removed record")
	assert.Nil(t, rec.Depends)
	assert.Equal(t, "", rec.Host)
	assert.Equal(t, []string{"n1"}, res.Changes.Nodes)
	assert.Empty(t, res.Changes.RemovedNodes)
}

func TestApply_ServiceMoveKeepsReverseIndex(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{
		"n1": create("svcA", "h1", node.Healthy),
		"n2": create("svcA", "h2", node.Healthy),
	}})
	require.NoError(t, err)

	res, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{"n2": {ServiceName: node.Ptr("svcB")}}})
	require.NoError(t, err)

	owner, _ := ix.Snapshot().Owner("n2")
	assert.Equal(t, "svcB", owner)
	assert.Equal(t, []string{"svcA", "svcB"}, res.Changes.Services)
	svcA, _ := ix.Snapshot().Service("svcA")
	assert.Equal(t, 1, svcA.Total)
	requireConsistent(t, ix.Snapshot())
}

func TestApply_MalformedDeltaIsAtomic(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		delta Delta
	}{
		{
			name: "new record without service",
			delta: Delta{
				Removed: []string{"n1"},
				Updated: map[string]node.Patch{"n9": {Health: node.Ptr(node.Healthy)}},
			},
		},
		{
			name:  "invalid health",
			delta: Delta{Updated: map[string]node.Patch{"n1": {Health: node.Ptr(node.Health("bogus"))}}},
		},
		{
			name:  "empty removed id",
			delta: Delta{Removed: []string{""}},
		},
		{
			name:  "empty added id",
			delta: Delta{Added: map[string]node.Patch{"": create("svcA", "h", node.Healthy)}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ix, _ := newTestIndex(t)
			ctx := context.Background()
			_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{"n1": create("svcA", "h1", node.Healthy)}})
			require.NoError(t, err)
			before := ix.Snapshot()

			_, err = ix.Apply(ctx, tc.delta)

			require.ErrorIs(t, err, ErrMalformedDelta)
			assert.Same(t, before, ix.Snapshot())
			_, ok := ix.Snapshot().Node("n1")
			assert.True(t, ok)
		})
	}
}

func TestApply_RemovingUnknownIsNoop(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)

	res, err := ix.Apply(context.Background(), Delta{Removed: []string{"ghost"}})
	require.NoError(t, err)
	assert.True(t, res.Changes.Empty())
}

func TestApply_OrderIndependentChangeSet(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Apply(ctx, Delta{Updated: map[string]node.Patch{
		"a": create("s1", "h", node.Healthy),
		"b": create("s1", "h", node.Healthy),
		"c": create("s2", "h", node.Unhealthy),
	}})
	require.NoError(t, err)

	res, err := ix.Apply(ctx, Delta{
		Removed: []string{"c"},
		Updated: map[string]node.Patch{"b": {Health: node.Ptr(node.Unhealthy)}},
		Added:   map[string]node.Patch{"d": create("s3", "h", node.Unknown)},
	})
	require.NoError(t, err)

	want := ChangeSet{
		Nodes:           []string{"b", "c", "d"},
		RemovedNodes:    []string{"c"},
		Services:        []string{"s1", "s2", "s3"},
		RemovedServices: []string{"s2"},
		TouchedServices: []string{"s1", "s3"},
	}
	if diff := cmp.Diff(want, res.Changes); diff != "" {
		t.Errorf("ChangeSet mismatch (-want +got):\n%s", diff)
	}
	requireConsistent(t, ix.Snapshot())
}

func TestReset(t *testing.T) {
	t.Parallel()
	ix, _ := newTestIndex(t)
	_, err := ix.Apply(context.Background(), Delta{Updated: map[string]node.Patch{"n1": create("svcA", "h1", node.Healthy)}})
	require.NoError(t, err)

	prev := ix.Reset()

	assert.Equal(t, 1, prev.NodeCount())
	assert.True(t, ix.Snapshot().Empty())
	requireConsistent(t, ix.Snapshot())
}
