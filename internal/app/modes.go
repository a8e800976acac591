package app

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ServerMode runs the HTTP API and the WebSocket status stream. Execution
// happens in separate worker processes; their events arrive over the Redis
// event bus and are bridged into the local registry.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Broker.Bridge(ctx)
	})
	g.Go(func() error {
		return deps.Server.Start(ctx)
	})
	return g.Wait()
}

// WorkerMode runs only the execution worker pool. Status events are published
// to the Redis event bus for server instances to stream.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	return deps.Pool.Run(ctx)
}

// FullMode runs the HTTP API and the worker pool in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Broker.Bridge(ctx)
	})
	g.Go(func() error {
		return deps.Pool.Run(ctx)
	})
	g.Go(func() error {
		return deps.Server.Start(ctx)
	})
	return g.Wait()
}
