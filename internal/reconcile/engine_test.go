package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/flash"
	"github.com/specialistvlad/healthmesh/internal/graph"
	"github.com/specialistvlad/healthmesh/internal/metrics"
	tu "github.com/specialistvlad/healthmesh/internal/testutil"
	"github.com/specialistvlad/healthmesh/internal/transport"
	"github.com/specialistvlad/healthmesh/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine    *Engine
	renderer  *tu.FakeRenderer
	scheduler *tu.ManualScheduler
	clock     *clock.Manual
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, mode view.Mode) *fixture {
	t.Helper()
	f := &fixture{
		renderer:  tu.NewFakeRenderer(),
		scheduler: &tu.ManualScheduler{},
		clock:     clock.NewManual(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		metrics:   metrics.New(),
	}
	f.engine = New(Options{
		Mode:      mode,
		Clock:     f.clock,
		Renderer:  f.renderer,
		Metrics:   f.metrics,
		Scheduler: f.scheduler,
	})
	return f
}

func (f *fixture) connect(epoch string) {
	f.engine.Handle(context.Background(), transport.Event{Kind: transport.EventConnected, Epoch: epoch})
}

func (f *fixture) send(msg string) {
	f.engine.Handle(context.Background(), transport.Event{Kind: transport.EventMessage, Data: []byte(msg)})
}

const (
	addTwoServices = `{"delta":{"added":{
		"n1":{"details":{"id":"n1","serviceName":"Billing","host":"h1"},"healthStatus":"Healthy","depends":["Ledger"]},
		"n2":{"details":{"id":"n2","serviceName":"Ledger","host":"h2"},"healthStatus":"Healthy"}
	}}}`
	ledgerDown = `{"delta":{"updated":{"n2":{"healthStatus":"Unhealthy"}}}}`
)

func TestEngine_ServiceLifecycle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	f := newFixture(t, view.Services)
	f.connect("e1")
	require.Empty(t, f.renderer.Calls(), "nothing to erase on the first connect")

	// --- Act ---
	f.send(addTwoServices)

	// --- Assert ---
	assert.Equal(t, []string{"AddOrUpdateNodes", "AddOrUpdateEdges", "Fit"}, f.renderer.Methods())
	assert.Equal(t, []string{"Billing", "Ledger"}, f.renderer.NodeIDs())
	assert.Equal(t, []string{graph.EdgeID("Billing", "Ledger")}, f.renderer.EdgeIDs())
	billing, _ := f.renderer.Node("Billing")
	assert.True(t, billing.Highlight)
	assert.Equal(t, "#ff6666", billing.Color)
	assert.Equal(t, []string{"Billing", "Ledger"}, f.engine.Flashing())
	assert.Equal(t, 2, f.engine.NodeCount())
	assert.Equal(t, 1, f.engine.EdgeCount())
	assert.Equal(t, []time.Duration{flash.DefaultDuration}, f.scheduler.Delays())

	// The highlight expires once the window has passed.
	f.renderer.Reset()
	f.clock.Advance(flash.DefaultDuration)
	require.True(t, f.scheduler.RunNext())
	assert.Equal(t, []string{"AddOrUpdateNodes"}, f.renderer.Methods())
	billing, _ = f.renderer.Node("Billing")
	assert.False(t, billing.Highlight)
	assert.Equal(t, "#d4edda", billing.Color)
	assert.Empty(t, f.engine.Flashing())
	assert.Zero(t, f.scheduler.Pending())

	// A health change redraws only the affected service; no second fit.
	f.renderer.Reset()
	f.send(ledgerDown)
	calls := f.renderer.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Nodes, 1)
	assert.Equal(t, "Ledger", calls[0].Nodes[0].ID)
	assert.True(t, calls[0].Nodes[0].Highlight)
	svc, ok := f.engine.Snapshot().Service("Ledger")
	require.True(t, ok)
	assert.Equal(t, 1, svc.Alerts)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Deltas.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GraphOps.WithLabelValues("fit")))
}

func TestEngine_PollRefreshFlashesWithoutRedrawingHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, view.Services)
	f.connect("e1")
	f.send(addTwoServices)
	f.clock.Advance(time.Second)
	require.True(t, f.scheduler.RunNext())
	f.renderer.Reset()

	f.send(`{"delta":{"updated":{"n1":{"lastPollInstant":1700000000000}}}}`)

	calls := f.renderer.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Nodes, 1)
	assert.Equal(t, "Billing", calls[0].Nodes[0].ID)
	assert.True(t, calls[0].Nodes[0].Highlight, "a touched service flashes even when its rollup is unchanged")
	assert.Equal(t, []string{"Billing"}, f.engine.Flashing())
}

func TestEngine_NodeMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, view.Nodes)
	f.connect("e1")
	f.send(`{"delta":{"added":{
		"a":{"details":{"id":"a","serviceName":"Billing","host":"h1"},"healthStatus":"Healthy","depends":["b"]},
		"b":{"details":{"id":"b","serviceName":"Ledger","host":"h2"}}
	}}}`)

	assert.Equal(t, []string{"a", "b"}, f.renderer.NodeIDs())
	assert.Equal(t, []string{"a->b"}, f.renderer.EdgeIDs())
	a, _ := f.renderer.Node("a")
	assert.Equal(t, "Billing@h1", a.Label)

	f.renderer.Reset()
	f.send(`{"delta":{"removed":["b"]}}`)
	assert.Equal(t, []string{"RemoveEdges", "RemoveNodes"}, f.renderer.Methods())
	assert.Equal(t, []string{"a"}, f.renderer.NodeIDs())
	assert.Empty(t, f.renderer.EdgeIDs())
}

func TestEngine_DropsBadMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, view.Services)
	f.connect("e1")
	f.send(addTwoServices)
	f.renderer.Reset()
	before := f.engine.Snapshot()

	testCases := []struct {
		name string
		msg  string
	}{
		{name: "not json", msg: `{{`},
		{name: "keep-alive", msg: `{"ping":1}`},
		{name: "unknown health", msg: `{"delta":{"updated":{"n1":{"healthStatus":"Sideways"}}}}`},
		{name: "new id without service", msg: `{"delta":{"added":{"n9":{"healthStatus":"Healthy"}}}}`},
		{name: "duplicate", msg: addTwoServices},
		{name: "negative presence", msg: `{"userCount":-1}`},
	}

	for _, tc := range testCases {
		f.send(tc.msg)
		assert.Same(t, before, f.engine.Snapshot(), tc.name)
	}
	assert.Empty(t, f.renderer.Calls())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Deltas.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Deltas.WithLabelValues("noop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Messages.WithLabelValues("keepalive")))
}

func TestEngine_Presence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, view.Services)
	f.send(`{"userCount":7}`)

	assert.Equal(t, 7, f.engine.UserCount())
	assert.Equal(t, 7.0, testutil.ToFloat64(f.metrics.Users))
}

func TestEngine_ReconnectResetsEverything(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	f := newFixture(t, view.Services)
	f.connect("e1")
	f.send(addTwoServices)
	require.Equal(t, 1, f.scheduler.Pending())
	f.renderer.Reset()

	// --- Act ---
	f.connect("e2")

	// --- Assert ---
	assert.Equal(t, []string{"RemoveEdges", "RemoveNodes"}, f.renderer.Methods())
	assert.Empty(t, f.renderer.NodeIDs())
	assert.True(t, f.engine.Snapshot().Empty())
	assert.Empty(t, f.engine.Flashing())
	assert.Zero(t, f.engine.EdgeCount())

	// The sweep scheduled before the reset is abandoned.
	f.renderer.Reset()
	f.clock.Advance(time.Second)
	require.True(t, f.scheduler.RunNext())
	assert.Empty(t, f.renderer.Calls())

	// The replay after reconnect draws and fits again.
	f.send(addTwoServices)
	assert.Equal(t, []string{"AddOrUpdateNodes", "AddOrUpdateEdges", "Fit"}, f.renderer.Methods())
}

func TestEngine_Focus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, view.Services)
	f.connect("e1")
	f.send(addTwoServices)
	f.renderer.Reset()

	assert.False(t, f.engine.Focus("Nope"))
	assert.True(t, f.engine.Focus("Ledger"))
	calls := f.renderer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, tu.Call{Method: "Focus", IDs: []string{"Ledger"}}, calls[0])
}

func TestEngine_Selected(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mode     view.Mode
		selected []string
		want     []string
	}{
		{name: "services keep selection order", mode: view.Services, selected: []string{"Ledger", "Billing"}, want: []string{"Ledger", "Billing"}},
		{name: "unknown ids are dropped", mode: view.Services, selected: []string{"Gone", "Billing"}, want: []string{"Billing"}},
		{name: "node ids do not resolve in the service view", mode: view.Services, selected: []string{"n1"}, want: []string{}},
		{name: "node view resolves node ids", mode: view.Nodes, selected: []string{"n2"}, want: []string{"n2"}},
		{name: "nothing selected", mode: view.Nodes, selected: nil, want: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			f := newFixture(t, tc.mode)
			f.connect("e1")
			f.send(addTwoServices)
			f.renderer.Selected = tc.selected

			// --- Act ---
			got := f.engine.Selected()

			// --- Assert ---
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEngine_RunLoop(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	renderer := tu.NewFakeRenderer()
	e := New(Options{Renderer: renderer, FlashDuration: 10 * time.Millisecond})
	events := make(chan transport.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	// --- Act ---
	events <- transport.Event{Kind: transport.EventConnected}
	events <- transport.Event{Kind: transport.EventMessage, Data: []byte(addTwoServices)}

	// --- Assert ---
	require.Eventually(t, func() bool {
		n, ok := renderer.Node("Billing")
		return ok && !n.Highlight
	}, 2*time.Second, 5*time.Millisecond, "the sweep runs on the loop and clears the highlight")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
