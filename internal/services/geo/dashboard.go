package geo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// PingSource reads raw pings, newest first. A zero since means no lower bound.
type PingSource interface {
	ListPings(ctx context.Context, since time.Time) ([]models.LocationPing, error)
}

// Publisher receives every freshly built view.
type Publisher interface {
	Publish(view models.DashboardView)
}

// Dashboard owns the current reconciled view and decides when to rebuild it.
type Dashboard struct {
	source     PingSource
	reconciler *Reconciler
	publisher  Publisher
	cfg        config.DashboardConfig
	logger     *zap.Logger
	now        func() time.Time

	group singleflight.Group

	mu   sync.RWMutex
	view models.DashboardView
}

func NewDashboard(source PingSource, reconciler *Reconciler, publisher Publisher, cfg config.DashboardConfig, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		source:     source,
		reconciler: reconciler,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		view:       models.DashboardView{Users: []models.UserSnapshot{}},
	}
}

// Current returns the last built view without touching the store.
func (d *Dashboard) Current() models.DashboardView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// Refresh rebuilds the view. Concurrent callers share one rebuild, which runs
// detached from any caller's cancellation and is bounded by RefreshTimeout. A
// caller whose ctx ends stops waiting and gets the current view with ctx.Err().
// On a fetch error the previous users are kept, LastError is set and the error
// is returned.
func (d *Dashboard) Refresh(ctx context.Context) (models.DashboardView, error) {
	ch := d.group.DoChan("refresh", func() (interface{}, error) {
		rctx := context.WithoutCancel(ctx)
		if d.cfg.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, d.cfg.RefreshTimeout)
			defer cancel()
		}
		return d.rebuild(rctx)
	})

	select {
	case res := <-ch:
		return res.Val.(models.DashboardView), res.Err
	case <-ctx.Done():
		return d.Current(), ctx.Err()
	}
}

func (d *Dashboard) rebuild(ctx context.Context) (models.DashboardView, error) {
	now := d.now()

	var since time.Time
	if d.cfg.QueryWindow > 0 {
		since = now.Add(-d.cfg.QueryWindow)
	}

	pings, err := d.source.ListPings(ctx, since)
	if err != nil {
		return d.keepPrevious(fmt.Errorf("fetch pings: %w", err))
	}

	users := d.reconciler.Reconcile(ctx, pings, now)
	// names resolved after the deadline are fallbacks; never publish those
	if err := ctx.Err(); err != nil {
		return d.keepPrevious(fmt.Errorf("refresh interrupted: %w", err))
	}
	SortByRecency(users)

	view := models.DashboardView{
		Users: users,
		Stats: BuildStats(users, len(pings), now),
	}

	d.mu.Lock()
	d.view = view
	d.mu.Unlock()

	if d.publisher != nil {
		d.publisher.Publish(view)
	}
	d.logger.Debug("dashboard refreshed",
		zap.Int("users", view.Stats.TotalUsers),
		zap.Int("online", view.Stats.OnlineUsers),
		zap.Int("pings", len(pings)),
	)
	return view, nil
}

func (d *Dashboard) keepPrevious(err error) (models.DashboardView, error) {
	d.mu.Lock()
	d.view.LastError = err.Error()
	view := d.view
	d.mu.Unlock()
	return view, err
}

// Run refreshes once, then on every auto-refresh tick and after each burst of
// change notifications settles for ChangeDebounce. It returns when ctx ends.
func (d *Dashboard) Run(ctx context.Context, changes <-chan struct{}) {
	d.refreshAndLog(ctx)

	var tick <-chan time.Time
	if d.cfg.AutoRefreshInterval > 0 {
		ticker := time.NewTicker(d.cfg.AutoRefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var debounce *time.Timer
	var settled <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			d.refreshAndLog(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(d.cfg.ChangeDebounce)
			} else {
				debounce.Reset(d.cfg.ChangeDebounce)
			}
			settled = debounce.C
		case <-settled:
			settled = nil
			d.refreshAndLog(ctx)
		}
	}
}

func (d *Dashboard) refreshAndLog(ctx context.Context) {
	if _, err := d.Refresh(ctx); err != nil && ctx.Err() == nil {
		d.logger.Warn("dashboard refresh failed", zap.Error(err))
	}
}
