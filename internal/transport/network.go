package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"resty.dev/v3"
)

// AlwaysOnline is a Network that never goes offline.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online() bool { return true }

// WaitOnline returns immediately.
func (AlwaysOnline) WaitOnline(context.Context) error { return nil }

// ProbeMonitor derives connectivity from periodic HTTP probes. Any HTTP
// response, whatever its status, counts as online.
type ProbeMonitor struct {
	client   *resty.Client
	url      string
	interval time.Duration
	online   atomic.Bool

	mu   sync.Mutex
	wake chan struct{}
}

// NewProbeMonitor returns a monitor that starts out online.
func NewProbeMonitor(client *resty.Client, url string, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &ProbeMonitor{client: client, url: url, interval: interval, wake: make(chan struct{})}
	m.online.Store(true)
	return m
}

// Online reports the last probe result.
func (m *ProbeMonitor) Online() bool { return m.online.Load() }

// WaitOnline blocks until a probe succeeds.
func (m *ProbeMonitor) WaitOnline(ctx context.Context) error {
	for {
		m.mu.Lock()
		wake := m.wake
		m.mu.Unlock()
		if m.Online() {
			return nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run probes until ctx is done.
func (m *ProbeMonitor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Network probe started.", "url", m.url, "interval", m.interval)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Probe runs one probe and records the result.
func (m *ProbeMonitor) Probe(ctx context.Context) bool {
	_, err := m.client.R().SetContext(ctx).Head(m.url)
	online := err == nil
	if ctx.Err() != nil {
		return m.Online()
	}
	m.set(online)
	if !online {
		ctxlog.FromContext(ctx).Debug("Network probe failed.", "error", err)
	}
	return online
}

func (m *ProbeMonitor) set(online bool) {
	was := m.online.Swap(online)
	if online && !was {
		m.mu.Lock()
		close(m.wake)
		m.wake = make(chan struct{})
		m.mu.Unlock()
	}
}
