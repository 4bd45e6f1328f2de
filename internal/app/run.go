package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Run connects to the upstream and serves HTTP until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	ctx = a.ctx(ctx)
	a.logger.Debug("App.Run method started.")
	defer a.logger.Debug("App.Run method finished.")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to start upstream connection: %w", err)
	}
	a.logger.Info("🚀 Connecting to upstream...", "transport", a.config.Source.Transport)

	g.Go(func() error {
		return a.engine.Run(ctx, a.adapter.Events())
	})
	g.Go(func() error {
		<-ctx.Done()
		a.adapter.Disconnect()
		<-a.adapter.Done()
		return nil
	})
	if a.probe != nil {
		g.Go(func() error { return a.probe.Run(ctx) })
	}
	g.Go(func() error { return a.serve(ctx) })

	err := g.Wait()
	a.logger.Info("🏁 Shut down.")
	return err
}
