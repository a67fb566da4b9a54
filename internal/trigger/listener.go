package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Listener runs one subscription loop per source table and feeds events into
// the debouncer.
//
// Channel naming follows <notify_channel_prefix><table>; the matching trigger
// on the source side is installed as <trigger_prefix><table>. The listener
// only consumes, it never installs triggers.
//
// Recovery is at-least-once: when the connection drops and comes back, a full
// re-index job is dispatched for every subscribed source, because events
// published during the outage are gone.
type Listener struct {
	nc       *nats.Conn
	cfg      config.TriggerConfig
	debounce *Debouncer
	resolve  Resolver
	dispatch Dispatch
	logger   *zap.Logger
}

// Connect establishes the NATS connection used for change notifications.
// The connection retries forever with a reconnect wait; a lost subscription
// is logged and recovered, never fatal.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("change notification subscription lost", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// NewListener creates a listener over an established connection.
func NewListener(nc *nats.Conn, cfg config.TriggerConfig, resolve Resolver, dispatch Dispatch, clock Clock, logger *zap.Logger) *Listener {
	l := &Listener{
		nc:       nc,
		cfg:      cfg,
		resolve:  resolve,
		dispatch: dispatch,
		logger:   logger,
	}
	l.debounce = NewDebouncer(cfg.BatchDelay(), clock, resolve, dispatch, logger)
	return l
}

// Subject returns the notification channel for a source table.
func (l *Listener) Subject(table string) string {
	return l.cfg.NotifyChannelPrefix + table
}

// TriggerName returns the trigger installed on the source side for a table.
func (l *Listener) TriggerName(table string) string {
	return l.cfg.TriggerPrefix + table
}

// Run subscribes to every source table and consumes events until the context
// is cancelled. It blocks; callers run it in a goroutine.
func (l *Listener) Run(ctx context.Context, tables []string) error {
	if !l.cfg.EnableRealtime {
		l.logger.Info("realtime change notifications disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	// On reconnect, schedule a full re-index per source: notifications
	// published during the outage were missed.
	l.nc.SetReconnectHandler(func(_ *nats.Conn) {
		l.logger.Info("reconnected, scheduling full re-index for all sources")
		for _, table := range tables {
			l.dispatchFull(table)
		}
	})

	errCh := make(chan error, len(tables))
	for _, table := range tables {
		go func(table string) {
			errCh <- l.runSource(ctx, table)
		}(table)
	}

	<-ctx.Done()
	l.debounce.Close()
	return ctx.Err()
}

// runSource subscribes to one table's channel with exponential backoff and
// pumps events into the debouncer.
func (l *Listener) runSource(ctx context.Context, table string) error {
	subject := l.Subject(table)

	for {
		msgCh := make(chan *nats.Msg, 64)
		sub, err := backoff.Retry(ctx, func() (*nats.Subscription, error) {
			return l.nc.ChanSubscribe(subject, msgCh)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}

		l.logger.Info("subscribed to change notifications",
			zap.String("subject", subject),
			zap.String("trigger", l.TriggerName(table)))

		err = l.consume(ctx, table, msgCh)
		_ = sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Subscription dropped: resubscribe and recover missed events
		// with a full re-index of this source.
		l.logger.Warn("subscription dropped, resubscribing",
			zap.String("subject", subject),
			zap.Error(err))
		l.dispatchFull(table)
	}
}

// consume pumps one subscription's messages into the debouncer until the
// channel closes or the context is cancelled.
func (l *Listener) consume(ctx context.Context, table string, msgCh chan *nats.Msg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgCh:
			if !ok {
				return fmt.Errorf("subscription channel closed for %s", table)
			}
			ev, err := ParseEvent(msg.Data)
			if err != nil {
				l.logger.Warn("dropping malformed trigger event",
					zap.String("subject", msg.Subject),
					zap.Error(err))
				continue
			}
			l.debounce.Offer(ev)
		}
	}
}

// dispatchFull hands the pipeline a full re-index job for a source.
func (l *Listener) dispatchFull(table string) {
	l.dispatch(Job{
		ID:          uuid.NewString(),
		SourceTable: table,
		ResourceIDs: l.resolve(table),
		Full:        true,
	})
}
