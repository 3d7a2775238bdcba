package marvel

import (
	"context"
	"time"
)

// Pauser inserts politeness delays between outbound requests so the gateway
// is never hit in rapid succession.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps on a timer, waking early on context cancellation.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NopPauser never pauses. Used in tests.
type NopPauser struct{}

// Pause returns immediately.
func (NopPauser) Pause(context.Context, time.Duration) {}
