package usecase

import (
	"context"
	"time"
)

// DelayPacer waits a fixed delay between verification attempts so the
// authority sees at most one request sequence at a time.
type DelayPacer struct {
	delay time.Duration
}

func NewDelayPacer(delay time.Duration) *DelayPacer {
	return &DelayPacer{delay: delay}
}

func (p *DelayPacer) Pause(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
