package services

import (
	"context"
	"time"

	"github.com/mroshb/campus_match/pkg/logger"
)

// Sweeper periodically expires overdue sessions, pairs queue entries that
// missed each other and times out stale ones. Lazy checks already make reads correct; the sweep makes sure
// idle sessions still terminate and get announced.
type Sweeper struct {
	sessions  *SessionService
	pairing   *PairingService
	interval  time.Duration
	batchSize int
}

func NewSweeper(sessions *SessionService, pairing *PairingService, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = DefaultSettings().SweepBatchSize
	}
	return &Sweeper{
		sessions:  sessions,
		pairing:   pairing,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass. Failures are logged and picked up again on
// the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) (expired, timedOut int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in sweep", "error", r)
		}
	}()

	sessions, err := s.sessions.ExpireOverdue(ctx, s.batchSize)
	if err != nil {
		logger.Error("Failed to expire sessions", "error", err)
	} else {
		expired = len(sessions)
	}

	paired, err := s.pairing.PairWaiting(ctx, s.batchSize)
	if err != nil {
		logger.Error("Failed to pair waiting entries", "error", err)
	}

	timedOut, err = s.pairing.TimeoutStale(ctx, s.batchSize)
	if err != nil {
		logger.Error("Failed to time out queue entries", "error", err)
	}

	if expired > 0 || paired > 0 || timedOut > 0 {
		logger.Debug("Sweep finished", "expired_sessions", expired, "paired", paired, "timed_out_entries", timedOut)
	}
	return expired, timedOut
}
