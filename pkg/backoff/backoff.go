// Package backoff computes retry delays: exponential growth capped at a maximum,
// plus proportional jitter. A server-supplied hint replaces the exponential value.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures delay computation
type Policy struct {
	BaseDelay     time.Duration
	Multiplier    float64
	MaxDelay      time.Duration
	JitterPercent float64

	// Random returns a value in [0,1); nil uses math/rand
	Random func() float64
}

// DefaultPolicy returns base 1s, multiplier 2, max 30s, jitter 10%
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:     time.Second,
		Multiplier:    2,
		MaxDelay:      30 * time.Second,
		JitterPercent: 0.10,
	}
}

// Delay returns the wait before retrying after the given 0-based attempt
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return p.jitter(time.Duration(delay))
}

// DelayWithHint uses hint instead of the exponential value when hint > 0
func (p Policy) DelayWithHint(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return p.jitter(hint)
	}
	return p.Delay(attempt)
}

func (p Policy) jitter(d time.Duration) time.Duration {
	if p.JitterPercent <= 0 {
		return d
	}
	random := p.Random
	if random == nil {
		random = rand.Float64
	}
	return d + time.Duration(float64(d)*p.JitterPercent*random())
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
