package geo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

type fakeTriggerStore struct {
	mu        sync.Mutex
	active    []string
	hasAny    bool
	insertErr error
	inserted  [][]models.LocationPing
	responded func(call int) []string
	polls     int
	sinces    []time.Time
}

func (f *fakeTriggerStore) ActiveUserIDs(context.Context, time.Time) ([]string, error) {
	return f.active, nil
}

func (f *fakeTriggerStore) HasAnyPing(context.Context) (bool, error) {
	return f.hasAny, nil
}

func (f *fakeTriggerStore) InsertMany(_ context.Context, pings []models.LocationPing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, pings)
	return nil
}

func (f *fakeTriggerStore) RespondedUserIDs(_ context.Context, _ []string, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.sinces = append(f.sinces, since)
	if f.responded == nil {
		return nil, nil
	}
	return f.responded(f.polls), nil
}

func (f *fakeTriggerStore) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func testTriggerConfig() config.TriggerConfig {
	return config.TriggerConfig{
		GraceWait:      time.Millisecond,
		PollInterval:   2 * time.Millisecond,
		MaxWait:        60 * time.Millisecond,
		ResponseWindow: 3 * time.Minute,
		ActiveWindow:   2 * time.Hour,
		MaxTargets:     50,
		QuorumFraction: 0.6,
		QuorumMin:      1,
	}
}

func TestTrigger_EmptyStoreIsNoOp(t *testing.T) {
	store := &fakeTriggerStore{}
	hooked := false
	c := NewTriggerCoordinator(store, testTriggerConfig(), func(context.Context) error { hooked = true; return nil }, nil)

	outcome, err := c.RequestFreshLocations(context.Background(), "owner")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if outcome != TriggerNoRecipients {
		t.Errorf("outcome = %v, want no_recipients", outcome)
	}
	if len(store.inserted) != 0 {
		t.Errorf("nothing should be written, got %d batches", len(store.inserted))
	}
	if hooked {
		t.Error("completion hook must not run for a no-op")
	}
	if c.State() != TriggerIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestTrigger_NoRecentUsersWritesGlobalMarkerOnly(t *testing.T) {
	store := &fakeTriggerStore{hasAny: true}
	c := NewTriggerCoordinator(store, testTriggerConfig(), nil, nil)

	start := time.Now()
	outcome, err := c.RequestFreshLocations(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if outcome != TriggerGlobalOnly {
		t.Errorf("outcome = %v, want global_only", outcome)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("global-only request should return without waiting")
	}
	if len(store.inserted) != 1 || len(store.inserted[0]) != 1 {
		t.Fatalf("expected one batch with one marker, got %+v", store.inserted)
	}
	marker := store.inserted[0][0]
	if marker.UserID != "owner-1" || marker.BatteryStatus != models.StatusTimestampUpdateTrigger {
		t.Errorf("unexpected marker %+v", marker)
	}
	if marker.BatteryLevel == nil || *marker.BatteryLevel != models.BatteryTimestampUpdateTrigger {
		t.Errorf("unexpected marker battery %v", marker.BatteryLevel)
	}
	if store.pollCount() != 0 {
		t.Error("global-only request must not poll")
	}
}

func TestTrigger_WritesPerUserRowsCappedAtMaxTargets(t *testing.T) {
	store := &fakeTriggerStore{
		active:    []string{"a", "b", "c"},
		responded: func(int) []string { return []string{"a", "b"} },
	}
	cfg := testTriggerConfig()
	cfg.MaxTargets = 2
	c := NewTriggerCoordinator(store, cfg, nil, nil)

	outcome, err := c.RequestFreshLocations(context.Background(), "owner")
	if err != nil || outcome != TriggerCompleted {
		t.Fatalf("got %v, %v", outcome, err)
	}
	batch := store.inserted[0]
	if len(batch) != 3 {
		t.Fatalf("expected marker plus 2 targets, got %d rows", len(batch))
	}
	for _, p := range batch[1:] {
		if p.BatteryStatus != models.StatusLocationRequestTrigger || *p.BatteryLevel != models.BatteryLocationRequestTrigger {
			t.Errorf("unexpected per-user trigger %+v", p)
		}
		if p.Latitude != 0 || p.Longitude != 0 {
			t.Errorf("trigger rows carry no position, got %+v", p)
		}
	}
}

func TestTrigger_StopsOnQuorum(t *testing.T) {
	store := &fakeTriggerStore{
		active: []string{"a", "b", "c", "d", "e"},
		responded: func(call int) []string {
			if call < 3 {
				return []string{"a"}
			}
			return []string{"a", "b", "c"}
		},
	}
	cfg := testTriggerConfig()
	cfg.MaxWait = 5 * time.Second
	hooks := 0
	c := NewTriggerCoordinator(store, cfg, func(context.Context) error { hooks++; return nil }, nil)

	outcome, err := c.RequestFreshLocations(context.Background(), "owner")
	if err != nil || outcome != TriggerCompleted {
		t.Fatalf("got %v, %v", outcome, err)
	}
	if store.pollCount() != 3 {
		t.Errorf("expected polling to stop on the third poll, got %d", store.pollCount())
	}
	if hooks != 1 {
		t.Errorf("completion hook ran %d times", hooks)
	}
}

func TestTrigger_TimesOutAndStillCompletes(t *testing.T) {
	store := &fakeTriggerStore{active: []string{"a", "b"}}
	hooks := 0
	c := NewTriggerCoordinator(store, testTriggerConfig(), func(context.Context) error { hooks++; return errors.New("refresh failed") }, nil)

	outcome, err := c.RequestFreshLocations(context.Background(), "owner")
	if err != nil {
		t.Fatalf("timeout is not an error, got %v", err)
	}
	if outcome != TriggerCompleted {
		t.Errorf("outcome = %v, want completed", outcome)
	}
	if hooks != 1 {
		t.Errorf("hook should run once regardless of quorum, ran %d", hooks)
	}
	if store.pollCount() < 2 {
		t.Errorf("expected several polls before timing out, got %d", store.pollCount())
	}
}

func TestTrigger_RejectedWrite(t *testing.T) {
	store := &fakeTriggerStore{active: []string{"a"}, insertErr: errors.New("permission denied")}
	c := NewTriggerCoordinator(store, testTriggerConfig(), nil, nil)

	_, err := c.RequestFreshLocations(context.Background(), "owner")
	if !errors.Is(err, ErrTriggerRejected) {
		t.Fatalf("expected ErrTriggerRejected, got %v", err)
	}
	if c.State() != TriggerIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if store.pollCount() != 0 {
		t.Error("rejected write must not enter the wait")
	}
}

func TestTrigger_InProgress(t *testing.T) {
	store := &fakeTriggerStore{active: []string{"a"}}
	cfg := testTriggerConfig()
	cfg.GraceWait = time.Hour
	c := NewTriggerCoordinator(store, cfg, nil, nil)

	outcome, run, err := c.Start(context.Background(), "owner")
	if err != nil || outcome != TriggerStarted || run == nil {
		t.Fatalf("start: %v %v %v", outcome, run, err)
	}
	if c.State() != TriggerAwaitingAck {
		t.Errorf("state = %v, want awaiting_ack", c.State())
	}

	if _, _, err := c.Start(context.Background(), "owner"); !errors.Is(err, ErrTriggerInProgress) {
		t.Errorf("expected ErrTriggerInProgress, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := run.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if c.State() != TriggerIdle {
		t.Errorf("state after cancel = %v, want idle", c.State())
	}
}

func TestTrigger_CancelDuringPolling(t *testing.T) {
	store := &fakeTriggerStore{active: []string{"a"}}
	cfg := testTriggerConfig()
	cfg.MaxWait = time.Hour
	cfg.PollInterval = time.Millisecond
	c := NewTriggerCoordinator(store, cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.RequestFreshLocations(ctx, "owner")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.State() != TriggerIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestQuorum(t *testing.T) {
	tests := []struct {
		targets  int
		fraction float64
		floor    int
		want     int
	}{
		{10, 0.6, 1, 6},
		{5, 0.6, 1, 3},
		{1, 0.6, 1, 1},
		{2, 0.1, 2, 2},
		{3, 0.1, 5, 3},
		{0, 0.6, 1, 0},
	}
	for _, tt := range tests {
		if got := Quorum(tt.targets, tt.fraction, tt.floor); got != tt.want {
			t.Errorf("Quorum(%d, %v, %d) = %d, want %d", tt.targets, tt.fraction, tt.floor, got, tt.want)
		}
	}
}

func TestTrigger_ResponsesCountFromTriggerWrite(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start

	store := &fakeTriggerStore{active: []string{"a"}}
	store.responded = func(call int) []string {
		if call == 1 {
			clock = start.Add(2 * time.Minute)
			return nil
		}
		return []string{"a"}
	}
	cfg := testTriggerConfig()
	cfg.ResponseWindow = time.Minute
	c := NewTriggerCoordinator(store, cfg, nil, nil)
	c.now = func() time.Time { return clock }

	outcome, err := c.RequestFreshLocations(context.Background(), "owner")
	if err != nil || outcome != TriggerCompleted {
		t.Fatalf("outcome = %v, err = %v", outcome, err)
	}
	want := []time.Time{start, start.Add(time.Minute)}
	if len(store.sinces) != len(want) {
		t.Fatalf("polls = %d, want %d", len(store.sinces), len(want))
	}
	for i := range want {
		if !store.sinces[i].Equal(want[i]) {
			t.Errorf("poll %d since = %v, want %v", i+1, store.sinces[i], want[i])
		}
	}
}
