package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/healthmesh/internal/clock"
	"github.com/specialistvlad/healthmesh/internal/config"
	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"github.com/specialistvlad/healthmesh/internal/metrics"
	"github.com/specialistvlad/healthmesh/internal/pollnow"
	"github.com/specialistvlad/healthmesh/internal/reconcile"
	"github.com/specialistvlad/healthmesh/internal/render"
	"github.com/specialistvlad/healthmesh/internal/transport"
	"github.com/specialistvlad/healthmesh/internal/view"
	"resty.dev/v3"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *config.Config
	clock   clock.Clock
	metrics *metrics.Metrics

	memory  *render.Memory
	sockets *render.SocketIO
	engine  *reconcile.Engine
	adapter *transport.Adapter
	probe   *transport.ProbeMonitor
	poller  *pollnow.Client
	client  *resty.Client

	httpServer *http.Server
	listening  chan struct{}
	addr       string
}

// Option customises New.
type Option func(*options)

type options struct {
	dialer transport.Dialer
	clock  clock.Clock
}

// WithDialer replaces the dialer chosen from source.transport.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and metrics registry.
func New(outW io.Writer, cfg *config.Config, opts ...Option) *App {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.Log, outW)
	logger.Debug("Logger configured successfully.")

	m := metrics.New()
	memory := render.NewMemory()
	sockets := render.NewSocketIO(memory, logger)
	engine := reconcile.New(reconcile.Options{
		Mode:          view.Mode(cfg.View.Mode),
		FlashDuration: cfg.View.FlashDuration,
		Clock:         o.clock,
		// memory first so widgets joining mid-broadcast see the change
		Renderer: render.Fanout{memory, sockets},
		Metrics:  m,
	})

	client := resty.New().SetTimeout(cfg.Agents.Timeout)
	network, probe := newNetwork(cfg.Source, client)
	dialer := o.dialer
	if dialer == nil {
		dialer = newDialer(cfg.Source)
	}
	adapter := transport.NewAdapter(transport.Options{
		Dialer:         dialer,
		Resolve:        newResolver(cfg.Source, client),
		Network:        network,
		ReconnectDelay: cfg.Source.ReconnectDelay,
		OnStateChange: func(s transport.State) {
			m.ConnectionInfo.Set(float64(s))
			logger.Debug("Connection state changed.", "state", s.String())
		},
		OnRetry: func(int) { m.Reconnects.Inc() },
	})
	logger.Debug("Components assembled.", "mode", cfg.View.Mode, "transport", cfg.Source.Transport)

	return &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		clock:     o.clock,
		metrics:   m,
		memory:    memory,
		sockets:   sockets,
		engine:    engine,
		adapter:   adapter,
		probe:     probe,
		poller:    pollnow.New(pollnow.Options{BaseURL: cfg.Agents.BaseURL, Timeout: cfg.Agents.Timeout, RateLimit: cfg.Agents.RateLimit}),
		client:    client,
		listening: make(chan struct{}),
	}
}

// Engine returns the reconciliation engine. This is primarily for testing.
func (a *App) Engine() *reconcile.Engine { return a.engine }

// Status summarises the service for the status bar.
func (a *App) Status() view.Status {
	return view.Status{
		Nodes:      a.engine.NodeCount(),
		Edges:      a.engine.EdgeCount(),
		Connection: a.adapter.State().String(),
		UserCount:  a.engine.UserCount(),
	}
}

// Listening is closed once the HTTP listener is bound.
func (a *App) Listening() <-chan struct{} { return a.listening }

// Addr is the bound HTTP address. It is valid after Listening is closed.
func (a *App) Addr() string { return a.addr }

// Close releases HTTP clients and widget connections.
func (a *App) Close() error {
	a.sockets.Close()
	_ = a.client.Close()
	return a.poller.Close()
}

func (a *App) ctx(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
