package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/specialistvlad/healthmesh/internal/ctxlog"
)

// DefaultReconnectDelay is the pause between a lost connection and the next
// dial.
const DefaultReconnectDelay = time.Second

// Options configures an Adapter.
type Options struct {
	Dialer  Dialer
	Resolve Resolver
	// Network defaults to AlwaysOnline.
	Network Network
	// ReconnectDelay is used when BackOff is nil.
	ReconnectDelay time.Duration
	// BackOff overrides the constant reconnect delay.
	BackOff backoff.BackOff
	// Buffer is the capacity of the event channel.
	Buffer int
	// OnStateChange is called on every state transition.
	OnStateChange func(State)
	// OnRetry is called before each reconnect attempt.
	OnRetry func(attempt int)
}

// Lifecycle phases of an Adapter.
const (
	phaseIdle int32 = iota
	phaseRunning
	phaseClosed
)

// Adapter is a self-healing connection to the upstream stream.
type Adapter struct {
	opts   Options
	bo     backoff.BackOff
	events chan Event
	state  atomic.Int32

	phase    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu   sync.Mutex
	conn Conn
}

// NewAdapter returns an idle adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.Network == nil {
		opts.Network = AlwaysOnline{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	bo := opts.BackOff
	if bo == nil {
		bo = backoff.NewConstantBackOff(opts.ReconnectDelay)
	}
	return &Adapter{
		opts:   opts,
		bo:     bo,
		events: make(chan Event, opts.Buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Events is closed once the adapter has stopped.
func (a *Adapter) Events() <-chan Event { return a.events }

// Done is closed once the adapter has stopped.
func (a *Adapter) Done() <-chan struct{} { return a.done }

// State is the current connection state.
func (a *Adapter) State() State { return State(a.state.Load()) }

// Connect starts dialing in the background. An adapter connects once; after
// Disconnect it returns ErrClosed.
func (a *Adapter) Connect(ctx context.Context) error {
	select {
	case <-a.stop:
		return ErrClosed
	default:
	}
	if !a.phase.CompareAndSwap(phaseIdle, phaseRunning) {
		if a.phase.Load() == phaseClosed {
			return ErrClosed
		}
		return errors.New("transport: already connected")
	}
	go a.run(ctx)
	return nil
}

// Disconnect stops the adapter. A pending retry is abandoned and the open
// connection, if any, is closed. It is safe to call more than once.
func (a *Adapter) Disconnect() {
	a.stopOnce.Do(func() {
		if a.phase.CompareAndSwap(phaseIdle, phaseClosed) {
			close(a.stop)
			close(a.events)
			close(a.done)
			return
		}
		a.phase.Store(phaseClosed)
		a.setState(Disconnecting)
		close(a.stop)
		a.mu.Lock()
		if a.conn != nil {
			_ = a.conn.Close()
		}
		a.mu.Unlock()
	})
}

func (a *Adapter) run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	defer close(a.done)
	defer close(a.events)
	defer a.setState(Disconnected)

	// Disconnect abandons an in-flight resolve or dial.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var url string
	for attempt := 1; ; attempt++ {
		if a.stopping(ctx) {
			return
		}
		if attempt > 1 && a.opts.OnRetry != nil {
			a.opts.OnRetry(attempt)
		}
		a.setState(Connecting)
		err := a.session(ctx, &url)
		if a.stopping(ctx) {
			logger.Debug("Adapter stopped.")
			return
		}
		a.setState(Disconnected)
		logger.Warn("Upstream connection lost.", "error", err, "attempt", attempt)
		if !a.waitRetry(ctx) {
			return
		}
	}
}

// session resolves, dials and pumps one connection until it fails.
func (a *Adapter) session(ctx context.Context, url *string) error {
	logger := ctxlog.FromContext(ctx)
	if *url == "" {
		u, err := a.opts.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolving stream url: %w", err)
		}
		*url = u
		logger.Info("Using stream URL.", "url", u)
	}

	conn, err := a.opts.Dialer.Dial(ctx, *url)
	if err != nil {
		return err
	}
	a.mu.Lock()
	select {
	case <-a.stop:
		a.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	default:
	}
	a.conn = conn
	a.mu.Unlock()
	stopAfter := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stopAfter()
		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		_ = conn.Close()
	}()

	epoch := uuid.NewString()
	a.setState(Connected)
	a.bo.Reset()
	logger.Info("🔌 Connected to upstream.", "epoch", epoch)
	a.emit(ctx, Event{Kind: EventConnected, Epoch: epoch})

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			a.emit(ctx, Event{Kind: EventDisconnected, Epoch: epoch, Err: err})
			return err
		}
		a.emit(ctx, Event{Kind: EventMessage, Epoch: epoch, Data: data})
	}
}

// waitRetry blocks until the next attempt is due. It reports false when the
// adapter should stop instead.
func (a *Adapter) waitRetry(ctx context.Context) bool {
	logger := ctxlog.FromContext(ctx)
	if !a.opts.Network.Online() {
		logger.Info("Network offline, waiting for it to return.")
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-a.stop:
				cancel()
			case <-wctx.Done():
			}
		}()
		if err := a.opts.Network.WaitOnline(wctx); err != nil {
			return false
		}
		return !a.stopping(ctx)
	}

	d := a.bo.NextBackOff()
	if d == backoff.Stop {
		logger.Warn("Reconnect budget exhausted.")
		return false
	}
	logger.Debug("Reconnecting after delay.", "delay", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-a.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
	}
	// A Disconnect racing the timer still wins.
	return !a.stopping(ctx)
}

func (a *Adapter) emit(ctx context.Context, ev Event) {
	select {
	case a.events <- ev:
	case <-ctx.Done():
	case <-a.stop:
		select {
		case a.events <- ev:
		default:
		}
	}
}

func (a *Adapter) stopping(ctx context.Context) bool {
	select {
	case <-a.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (a *Adapter) setState(s State) {
	if State(a.state.Swap(int32(s))) == s {
		return
	}
	if a.opts.OnStateChange != nil {
		a.opts.OnStateChange(s)
	}
}
