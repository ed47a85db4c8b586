// Package monitor runs the background sweep that keeps outbox delivery
// honest: it retries entries that have sat unacked past their backoff
// window, gives up on ones that have exhausted their retry budget, and
// expires messages whose deadline has passed.
package monitor

import (
	"context"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/sender"
	"github.com/actorway/actorway/internal/storage"
	"github.com/rs/zerolog"
)

// Retrier is the narrow sender surface Monitor needs.
type Retrier interface {
	Retry(entry storage.OutboxEntry) error
}

var _ Retrier = (*sender.Sender)(nil)

// Config bundles the knobs Node wires Monitor up with.
type Config struct {
	Interval      time.Duration
	AckTimeout    time.Duration
	MaxRetryCount int
}

// Monitor is the periodic outbox sweep described by spec.md §4.5: it owns
// no state of its own, reading and mutating only through Storage and
// Sender.
type Monitor struct {
	store  storage.Storage
	send   Retrier
	cfg    Config
	log    zerolog.Logger
}

func New(store storage.Storage, send Retrier, cfg Config) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	if cfg.MaxRetryCount == 0 {
		cfg.MaxRetryCount = 10
	}
	return &Monitor{store: store, send: send, cfg: cfg, log: actorlog.New("monitor")}
}

// Start runs the sweep on cfg.Interval until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one pass over the outbox. It is exported so tests (and a
// manual /admin trigger, should one ever exist) can drive it without
// waiting on the ticker.
func (m *Monitor) Sweep() {
	entries, err := m.store.OutboxIter()
	if err != nil {
		m.log.Error().Err(err).Msg("outbox sweep failed to list entries")
		return
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if e.Msg.IsExpired(now) {
			if err := m.store.Expire(e.ID); err != nil {
				m.log.Warn().Err(err).Str("id", e.ID.String()).Msg("failed to expire deadline-passed message")
			}
			continue
		}

		if e.RetryCount >= m.cfg.MaxRetryCount {
			info := message.ErrorInfo{
				Kind:    string(actorerr.KindRetryExhausted),
				Message: "exceeded max retry count without receiving an ack",
				Actor:   e.Msg.Dst,
			}
			if err := m.store.Error(e.ID, info); err != nil {
				m.log.Warn().Err(err).Str("id", e.ID.String()).Msg("failed to record retry-exhausted error")
			}
			continue
		}

		if !m.ackTimedOut(e, now) {
			continue
		}

		if err := m.send.Retry(e); err != nil {
			m.log.Warn().Err(err).Str("id", e.ID.String()).Msg("retry dispatch failed")
		}
	}
}

// ackTimedOut reports whether e has waited longer than both the
// configured floor (AckTimeout) and its own exponential backoff window
// since its last send attempt.
func (m *Monitor) ackTimedOut(e storage.OutboxEntry, now time.Time) bool {
	if e.LastSendAt.IsZero() {
		return true
	}
	wait := sender.NextBackoff(e.RetryCount)
	if wait < m.cfg.AckTimeout {
		wait = m.cfg.AckTimeout
	}
	return now.Sub(e.LastSendAt) >= wait
}
