package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

var (
	ErrTriggerInProgress = errors.New("location request already in progress")
	ErrTriggerRejected   = errors.New("trigger write rejected")
)

// TriggerState is the position of the coordinator in its request cycle.
type TriggerState int

const (
	TriggerIdle TriggerState = iota
	TriggerAwaitingAck
	TriggerPolling
)

func (s TriggerState) String() string {
	switch s {
	case TriggerAwaitingAck:
		return "awaiting_ack"
	case TriggerPolling:
		return "polling"
	default:
		return "idle"
	}
}

// TriggerOutcome tells the caller what a request actually did.
type TriggerOutcome int

const (
	// TriggerNoRecipients means the store holds no pings at all; nothing was written.
	TriggerNoRecipients TriggerOutcome = iota
	// TriggerGlobalOnly means nobody was recently active; only the global marker was written.
	TriggerGlobalOnly
	// TriggerStarted means per-user triggers were written and the wait is pending.
	TriggerStarted
	// TriggerCompleted means the wait finished and the completion hook ran.
	TriggerCompleted
)

func (o TriggerOutcome) String() string {
	switch o {
	case TriggerGlobalOnly:
		return "global_only"
	case TriggerStarted:
		return "started"
	case TriggerCompleted:
		return "completed"
	default:
		return "no_recipients"
	}
}

// TriggerStore is the slice of the ping store the coordinator needs.
type TriggerStore interface {
	ActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)
	HasAnyPing(ctx context.Context) (bool, error)
	InsertMany(ctx context.Context, pings []models.LocationPing) error
	RespondedUserIDs(ctx context.Context, userIDs []string, since time.Time) ([]string, error)
}

// TriggerCoordinator asks devices for a fresh fix by writing trigger rows, then
// polls the store until enough of them answered or the wait runs out.
type TriggerCoordinator struct {
	store      TriggerStore
	cfg        config.TriggerConfig
	onComplete func(ctx context.Context) error
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	state TriggerState
}

func NewTriggerCoordinator(store TriggerStore, cfg config.TriggerConfig, onComplete func(ctx context.Context) error, logger *zap.Logger) *TriggerCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerCoordinator{
		store:      store,
		cfg:        cfg,
		onComplete: onComplete,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *TriggerCoordinator) State() TriggerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *TriggerCoordinator) setState(s TriggerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// TriggerRun is a request whose trigger rows are written and whose wait is pending.
// Await must be called exactly once to return the coordinator to idle.
type TriggerRun struct {
	c       *TriggerCoordinator
	targets []string
	started time.Time
}

// Targets returns the user ids that received a per-user trigger.
func (r *TriggerRun) Targets() []string {
	return r.targets
}

// RequestFreshLocations runs the whole cycle and blocks until it is done.
func (c *TriggerCoordinator) RequestFreshLocations(ctx context.Context, ownerID string) (TriggerOutcome, error) {
	outcome, run, err := c.Start(ctx, ownerID)
	if err != nil || run == nil {
		return outcome, err
	}
	return run.Await(ctx)
}

// Start performs the trigger write synchronously so a rejected write can be
// reported. A non-nil run is returned only with TriggerStarted.
func (c *TriggerCoordinator) Start(ctx context.Context, ownerID string) (TriggerOutcome, *TriggerRun, error) {
	c.mu.Lock()
	if c.state != TriggerIdle {
		c.mu.Unlock()
		return TriggerNoRecipients, nil, ErrTriggerInProgress
	}
	c.state = TriggerAwaitingAck
	c.mu.Unlock()

	outcome, run, err := c.start(ctx, ownerID)
	if run == nil {
		c.setState(TriggerIdle)
	}
	return outcome, run, err
}

func (c *TriggerCoordinator) start(ctx context.Context, ownerID string) (TriggerOutcome, *TriggerRun, error) {
	started := c.now()

	active, err := c.store.ActiveUserIDs(ctx, started.Add(-c.cfg.ActiveWindow))
	if err != nil {
		return TriggerNoRecipients, nil, fmt.Errorf("load active users: %w", err)
	}

	marker := triggerPing(ownerID, models.StatusTimestampUpdateTrigger, models.BatteryTimestampUpdateTrigger, started)

	if len(active) == 0 {
		hasPings, err := c.store.HasAnyPing(ctx)
		if err != nil {
			return TriggerNoRecipients, nil, fmt.Errorf("check ping store: %w", err)
		}
		if !hasPings {
			c.logger.Info("location request skipped, store is empty")
			return TriggerNoRecipients, nil, nil
		}
		if err := c.store.InsertMany(ctx, []models.LocationPing{marker}); err != nil {
			c.logger.Error("global trigger write rejected", zap.Error(err))
			return TriggerNoRecipients, nil, fmt.Errorf("%w: %v", ErrTriggerRejected, err)
		}
		c.logger.Info("no recently active users, wrote global trigger only")
		return TriggerGlobalOnly, nil, nil
	}

	if c.cfg.MaxTargets > 0 && len(active) > c.cfg.MaxTargets {
		active = active[:c.cfg.MaxTargets]
	}

	rows := make([]models.LocationPing, 0, len(active)+1)
	rows = append(rows, marker)
	for _, id := range active {
		rows = append(rows, triggerPing(id, models.StatusLocationRequestTrigger, models.BatteryLocationRequestTrigger, started))
	}
	if err := c.store.InsertMany(ctx, rows); err != nil {
		c.logger.Error("trigger write rejected", zap.Int("targets", len(active)), zap.Error(err))
		return TriggerNoRecipients, nil, fmt.Errorf("%w: %v", ErrTriggerRejected, err)
	}

	c.logger.Info("location request sent", zap.Int("targets", len(active)))
	return TriggerStarted, &TriggerRun{c: c, targets: active, started: started}, nil
}

// Await sits out the grace period, polls for responses and finally runs the
// completion hook. It returns ctx.Err() if the context ends first.
func (r *TriggerRun) Await(ctx context.Context) (TriggerOutcome, error) {
	c := r.c
	defer c.setState(TriggerIdle)

	if err := sleepCtx(ctx, c.cfg.GraceWait); err != nil {
		return TriggerStarted, err
	}

	c.setState(TriggerPolling)
	responded, err := r.poll(ctx)
	if err != nil {
		return TriggerStarted, err
	}
	c.logger.Info("location request finished",
		zap.Int("targets", len(r.targets)),
		zap.Int("responded", responded),
		zap.Duration("elapsed", c.now().Sub(r.started)),
	)

	if c.onComplete != nil {
		if err := c.onComplete(ctx); err != nil {
			c.logger.Warn("refresh after location request failed", zap.Error(err))
		}
	}
	return TriggerCompleted, nil
}

func (r *TriggerRun) poll(ctx context.Context) (int, error) {
	c := r.c
	need := Quorum(len(r.targets), c.cfg.QuorumFraction, c.cfg.QuorumMin)
	deadline := r.started.Add(c.cfg.MaxWait)

	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	responded := 0
	for {
		now := c.now()
		// only pings written after the trigger count as answers
		since := now.Add(-c.cfg.ResponseWindow)
		if since.Before(r.started) {
			since = r.started
		}
		ids, err := c.store.RespondedUserIDs(ctx, r.targets, since)
		if err != nil {
			c.logger.Warn("poll for responses failed", zap.Error(err))
		} else {
			responded = len(ids)
			if responded >= need {
				return responded, nil
			}
		}
		if !now.Before(deadline) {
			return responded, nil
		}

		select {
		case <-ctx.Done():
			return responded, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Quorum is max(floor, ceil(fraction*targets)) capped at targets.
func Quorum(targets int, fraction float64, floor int) int {
	need := int(math.Ceil(fraction * float64(targets)))
	if need < floor {
		need = floor
	}
	if need > targets {
		need = targets
	}
	return need
}

func triggerPing(userID, status string, battery int, at time.Time) models.LocationPing {
	level := battery
	return models.LocationPing{
		UserID:        userID,
		UpdatedAt:     at,
		BatteryLevel:  &level,
		BatteryStatus: status,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
