package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// LocationsChannel is the NOTIFY channel fed by the locations table trigger.
const LocationsChannel = "locations_changed"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// ChangeListener turns Postgres notifications into bare refresh signals. The
// payload is ignored.
type ChangeListener struct {
	dsn     string
	channel string
	logger  *zap.Logger
}

func NewChangeListener(dsn string, logger *zap.Logger) *ChangeListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeListener{dsn: dsn, channel: LocationsChannel, logger: logger}
}

// Listen subscribes and returns a channel that receives one value per burst of
// changes. The channel is closed when ctx ends.
func (l *ChangeListener) Listen(ctx context.Context) (<-chan struct{}, error) {
	listener := pq.NewListener(l.dsn, minReconnectInterval, maxReconnectInterval, l.reportEvent)
	if err := listener.Listen(l.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("listening for location changes", zap.String("channel", l.channel))

	out := make(chan struct{}, 1)
	go func() {
		defer listener.Close()
		forwardNotifications(ctx, listener.Notify, out, listenerPingInterval, func() {
			if err := listener.Ping(); err != nil {
				l.logger.Warn("listener ping failed", zap.Error(err))
			}
		})
	}()
	return out, nil
}

func (l *ChangeListener) reportEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("change listener connection attempt failed", zap.Error(err))
	case pq.ListenerEventDisconnected:
		l.logger.Warn("change listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("change listener reconnected")
	}
}

// forwardNotifications coalesces notifications into out until ctx ends, then
// closes out. ping runs on the caller's goroutine and never after return. A nil notification means the connection was re-established and
// changes may have been missed, so it is forwarded as well.
func forwardNotifications(ctx context.Context, notify <-chan *pq.Notification, out chan<- struct{}, pingEvery time.Duration, ping func()) {
	defer close(out)

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notify:
			if !ok {
				return
			}
			select {
			case out <- struct{}{}:
			default:
			}
		case <-ticker.C:
			// inline so no ping outlives the listener it belongs to
			if ctx.Err() == nil {
				ping()
			}
		}
	}
}
