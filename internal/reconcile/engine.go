package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"github.com/specialistvlad/healthmesh/internal/flash"
	"github.com/specialistvlad/healthmesh/internal/graph"
	"github.com/specialistvlad/healthmesh/internal/index"
	"github.com/specialistvlad/healthmesh/internal/metrics"
	"github.com/specialistvlad/healthmesh/internal/transport"
	"github.com/specialistvlad/healthmesh/internal/view"
	"github.com/specialistvlad/healthmesh/internal/wire"
)

// Options configures an Engine.
type Options struct {
	Mode          view.Mode
	FlashDuration time.Duration
	Clock         clock.Clock
	Renderer      graph.Renderer
	Metrics       *metrics.Metrics
	// Scheduler runs deferred sweeps. It defaults to timers that post back
	// onto the Run loop; tests pass a manual scheduler and drive Handle
	// directly.
	Scheduler flash.Scheduler
}

// Engine owns the index, the publisher and the flash tracker.
type Engine struct {
	opts      Options
	index     *index.Index
	publisher *graph.Publisher
	flash     *flash.Tracker

	calls chan func()
	done  chan struct{}

	// fitPending is set on connect and cleared by the first delta after it.
	fitPending bool

	users atomic.Int64
	drawn atomic.Int64
	edges atomic.Int64
}

// New returns an Engine with an empty index.
func New(opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = view.Services
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	e := &Engine{
		opts:      opts,
		index:     index.New(index.WithClock(opts.Clock)),
		publisher: graph.NewPublisher(),
		calls:     make(chan func(), 16),
		done:      make(chan struct{}),
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = loopScheduler{e}
	}
	e.flash = flash.New(flash.Options{
		Duration:  opts.FlashDuration,
		Clock:     opts.Clock,
		Scheduler: scheduler,
		Source:    liveSource{e},
		OnExpire:  e.unhighlight,
	})
	return e
}

// Run consumes events until ctx is done or the channel closes. It is the
// only goroutine that mutates the engine.
func (e *Engine) Run(ctx context.Context, events <-chan transport.Event) error {
	defer close(e.done)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Reconcile loop started.", "mode", e.opts.Mode)
	defer logger.Debug("Reconcile loop finished.")

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Handle(ctx, ev)
		case fn := <-e.calls:
			fn()
		}
	}
}

// Handle processes one event. It must be called from the goroutine that
// owns the engine.
func (e *Engine) Handle(ctx context.Context, ev transport.Event) {
	logger := ctxlog.FromContext(ctx).With("epoch", ev.Epoch)
	switch ev.Kind {
	case transport.EventConnected:
		e.reset(ctxlog.WithLogger(ctx, logger))
	case transport.EventDisconnected:
		logger.Info("Upstream connection lost.", "error", ev.Err)
	case transport.EventMessage:
		e.message(ctxlog.WithLogger(ctx, logger), ev.Data)
	}
}

// Snapshot returns the current index snapshot. Safe from any goroutine.
func (e *Engine) Snapshot() *index.Snapshot { return e.index.Snapshot() }

// Mode returns the projection the engine draws.
func (e *Engine) Mode() view.Mode { return e.opts.Mode }

// UserCount is the last presence count.
func (e *Engine) UserCount() int { return int(e.users.Load()) }

// NodeCount is the number of drawn entities.
func (e *Engine) NodeCount() int { return int(e.drawn.Load()) }

// EdgeCount is the number of drawn edges.
func (e *Engine) EdgeCount() int { return int(e.edges.Load()) }

// Flashing returns the highlighted ids. Loop goroutine only.
func (e *Engine) Flashing() []string { return e.flash.Active() }

// Focus asks renderers to center on id. It reports false when id is not in
// the current projection.
func (e *Engine) Focus(id string) bool {
	if _, ok := view.Project(e.index.Snapshot(), e.opts.Mode).Entity(id); !ok {
		return false
	}
	e.opts.Renderer.Focus(id)
	e.opts.Metrics.GraphOps.WithLabelValues("focus").Inc()
	return true
}

// Selected returns the ids selected in the widgets that still exist in the
// current projection, in selection order.
func (e *Engine) Selected() []string {
	return view.Selection(e.index.Snapshot(), e.opts.Mode, e.opts.Renderer.SelectedIDs())
}

// Fit asks renderers to fit the whole graph.
func (e *Engine) Fit() {
	e.opts.Renderer.Fit()
	e.opts.Metrics.GraphOps.WithLabelValues("fit").Inc()
}

// reset drops all state. The upstream replays the full topology after every
// connect.
func (e *Engine) reset(ctx context.Context) {
	e.index.Reset()
	e.flash.Clear()
	e.draw(e.publisher.Reset())
	e.fitPending = true
	e.updateGauges()
	ctxlog.FromContext(ctx).Info("🔄 Upstream connected, state reset.")
}

func (e *Engine) message(ctx context.Context, raw []byte) {
	logger := ctxlog.FromContext(ctx)
	kind := wire.Classify(raw)
	e.opts.Metrics.Messages.WithLabelValues(kind.String()).Inc()

	switch kind {
	case wire.PresenceCount:
		n, err := wire.DecodePresence(raw)
		if err != nil {
			logger.Debug("Dropping presence message.", "error", err)
			return
		}
		e.users.Store(int64(n))
		e.opts.Metrics.Users.Set(float64(n))
	case wire.TopologyDelta:
		timer := time.Now()
		e.applyDelta(ctx, raw)
		e.opts.Metrics.ApplyDuration.Observe(time.Since(timer).Seconds())
	default:
		logger.Debug("Keep-alive received.")
	}
}

func (e *Engine) applyDelta(ctx context.Context, raw []byte) {
	logger := ctxlog.FromContext(ctx)
	d, err := wire.DecodeDelta(raw)
	if err != nil {
		logger.Debug("Dropping undecodable delta.", "error", err)
		e.opts.Metrics.Deltas.WithLabelValues("rejected").Inc()
		return
	}
	res, err := e.index.Apply(ctx, d)
	if err != nil {
		logger.Debug("Dropping malformed delta.", "error", err)
		e.opts.Metrics.Deltas.WithLabelValues("rejected").Inc()
		return
	}
	if res.Changes.Empty() {
		e.opts.Metrics.Deltas.WithLabelValues("noop").Inc()
		return
	}
	e.opts.Metrics.Deltas.WithLabelValues("applied").Inc()

	mode := e.opts.Mode
	prev, next := view.Project(res.Prev, mode), view.Project(res.Next, mode)
	changed, removed := view.Changed(res.Changes, mode)
	gd := e.publisher.Publish(changed, prev, next)

	flashing := view.Flashing(res.Changes, mode)
	e.flash.Observe(flashing, removed)
	gd.UpdatedNodes = highlight(gd.UpdatedNodes, flashing, next)

	e.draw(gd)
	if e.fitPending && !gd.Empty() {
		e.fitPending = false
		e.Fit()
	}
	e.updateGauges()
}

// highlight marks every flashing entity in updates, appending entities whose
// visual did not otherwise change.
func highlight(updates []graph.VisualNode, flashing []string, src graph.Source) []graph.VisualNode {
	pos := make(map[string]int, len(updates))
	for i, n := range updates {
		pos[n.ID] = i
	}
	for _, id := range flashing {
		ent, ok := src.Entity(id)
		if !ok {
			continue
		}
		if i, found := pos[id]; found {
			updates[i] = ent.Visual(true)
			continue
		}
		updates = append(updates, ent.Visual(true))
	}
	return updates
}

// unhighlight redraws expired entities in their health colors.
func (e *Engine) unhighlight(ids []string) {
	src := view.Project(e.index.Snapshot(), e.opts.Mode)
	var nodes []graph.VisualNode
	for _, id := range ids {
		if ent, ok := src.Entity(id); ok {
			nodes = append(nodes, ent.Visual(false))
		}
	}
	e.draw(graph.Delta{UpdatedNodes: nodes})
	e.opts.Metrics.Flashing.Set(float64(e.flash.Len()))
}

func (e *Engine) draw(d graph.Delta) {
	if d.Empty() {
		return
	}
	graph.Apply(e.opts.Renderer, d)
	ops := e.opts.Metrics.GraphOps
	ops.WithLabelValues("remove_edges").Add(float64(len(d.RemovedEdges)))
	ops.WithLabelValues("remove_nodes").Add(float64(len(d.RemovedNodes)))
	ops.WithLabelValues("upsert_nodes").Add(float64(len(d.UpdatedNodes)))
	ops.WithLabelValues("upsert_edges").Add(float64(len(d.UpdatedEdges)))
}

func (e *Engine) updateGauges() {
	snap := e.index.Snapshot()
	e.drawn.Store(int64(e.publisher.NodeCount()))
	e.edges.Store(int64(e.publisher.EdgeCount()))
	m := e.opts.Metrics
	m.Nodes.Set(float64(snap.NodeCount()))
	m.Services.Set(float64(snap.ServiceCount()))
	m.Edges.Set(float64(e.publisher.EdgeCount()))
	m.Flashing.Set(float64(e.flash.Len()))
}

// liveSource reads recency from whatever snapshot is current.
type liveSource struct{ e *Engine }

func (s liveSource) LastUpdated(id string) (time.Time, bool) {
	return view.Project(s.e.index.Snapshot(), s.e.opts.Mode).LastUpdated(id)
}

// loopScheduler posts deferred callbacks back onto the Run loop.
type loopScheduler struct{ e *Engine }

func (s loopScheduler) Schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case s.e.calls <- fn:
		case <-s.e.done:
		}
	})
}
