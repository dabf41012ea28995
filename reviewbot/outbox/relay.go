package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sender delivers one message somewhere.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Relay drains the outbox. A message is acknowledged once the primary Sender accepts it. Mirrors get a best-effort
// copy; their failures are logged but never hold a message back.
type Relay struct {
	Outbox    *Outbox
	Sender    Sender
	Mirrors   []Sender
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

func NewRelay(ob *Outbox, sender Sender, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		Outbox:    ob,
		Sender:    sender,
		Interval:  30 * time.Second,
		BatchSize: 50,
		Logger:    logger.With("component", "relay"),
	}
}

// Run drains the outbox every Interval until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.safeDrain(ctx); err != nil {
			r.Logger.Error("outbox drain failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// safeDrain runs DrainOnce, turning a panic in a Sender into an error so the relay keeps running.
func (r *Relay) safeDrain(ctx context.Context) (sent int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			relayPanics.Inc()
			err = fmt.Errorf("panic in outbox drain: %v", rec)
		}
	}()
	return r.DrainOnce(ctx)
}

// DrainOnce attempts every queued message once, oldest first, and returns how many were delivered. A failed message
// does not block the ones behind it.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	msgs, err := r.Outbox.Pending(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	outboxPending.Set(float64(len(msgs)))

	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return sent, nil
		}
		logger := r.Logger.With("id", msg.ID, "class", msg.Class, "attempts", msg.Attempts)
		if err := r.Sender.Send(ctx, msg); err != nil {
			messagesFailed.Inc()
			logger.Warn("outbox delivery failed", "err", err)
			if err := r.Outbox.RecordFailure(ctx, msg.ID, err); err != nil {
				logger.Error("recording delivery failure", "err", err)
			}
			continue
		}
		for _, m := range r.Mirrors {
			if err := m.Send(ctx, msg); err != nil {
				logger.Warn("outbox mirror delivery failed", "err", err)
			}
		}
		if err := r.Outbox.Ack(ctx, msg.ID); err != nil {
			return sent, fmt.Errorf("acknowledging delivered message: %w", err)
		}
		messagesDelivered.Inc()
		logger.Info("delivered outbox message", "subject", msg.Subject)
		sent++
	}
	return sent, nil
}
