package routes

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type HubLoop interface {
	Run(ctx context.Context)
}

type DashboardLoop interface {
	Run(ctx context.Context, changes <-chan struct{})
}

type ChangeFeed interface {
	Listen(ctx context.Context) (<-chan struct{}, error)
}

// RunWorkers starts the websocket hub and the dashboard refresh loop and
// blocks until ctx ends. Without a change feed the dashboard falls back to
// its auto-refresh ticker.
func RunWorkers(ctx context.Context, hub HubLoop, dashboard DashboardLoop, feed ChangeFeed, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	var changes <-chan struct{}
	if feed != nil {
		ch, err := feed.Listen(ctx)
		if err != nil {
			logger.Warn("change feed unavailable, using auto refresh only", zap.Error(err))
		} else {
			changes = ch
		}
	}

	g.Go(func() error {
		logger.Info("dashboard refresh loop started")
		dashboard.Run(ctx, changes)
		logger.Info("dashboard refresh loop stopped")
		return nil
	})

	return g.Wait()
}
