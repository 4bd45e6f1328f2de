package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/healthmesh/internal/ctxlog"
)

const shutdownTimeout = 5 * time.Second

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// serve runs the HTTP server until ctx is done, then shuts it down
// gracefully.
func (a *App) serve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring HTTP server.")

	ln, err := net.Listen("tcp", a.config.Listen.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Listen.Address, err)
	}
	a.addr = ln.Addr().String()
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return a.ctx(context.Background()) },
	}
	close(a.listening)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🩺 HTTP server starting", "address", fmt.Sprintf("http://%s/health", a.addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed unexpectedly", "error", err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("🩺 Shutting down HTTP server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
