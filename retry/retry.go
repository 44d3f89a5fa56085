// Package retry implements the bounded polling loops used while waiting
// for external systems to reach a terminal state.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/omni/bridge-orchestrator/apperr"
)

type Policy struct {
	Attempts    int           `yaml:"attempts"`
	Interval    time.Duration `yaml:"interval"`
	Backoff     float64       `yaml:"backoff"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// Delay returns the pause after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Interval
	if p.Backoff > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Backoff)
			if p.MaxInterval > 0 && d >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	return d
}

// Budget is the total time spent sleeping when every attempt is used.
func (p Policy) Budget() time.Duration {
	var total time.Duration
	for i := 1; i < p.Attempts; i++ {
		total += p.Delay(i)
	}
	return total
}

func (p Policy) Validate() error {
	if p.Attempts <= 0 {
		return fmt.Errorf("attempts must be positive, got %d", p.Attempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", p.Interval)
	}
	return nil
}

// CheckFunc reports whether polling is done. A non-nil error stops polling immediately.
type CheckFunc func(ctx context.Context, attempt int) (bool, error)

// Poll calls check until it reports done, fails, the context is cancelled or
// the attempt budget is exhausted. Exhaustion is reported as apperr.ErrTimeout.
func Poll(ctx context.Context, p Policy, clock Clock, check CheckFunc) error {
	if clock == nil {
		clock = RealClock
	}
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.Attempts {
			break
		}
		if err = clock.Sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.Attempts, apperr.ErrTimeout)
}
