// Package retry re-runs failing operations with a fixed or doubling delay.
//
// Every failure is retried the same way: there is no jitter and no
// per-error policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/blackwell-systems/pswine/internal/command"
	"github.com/blackwell-systems/pswine/internal/logging"
)

// ErrExhausted is wrapped when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// maxDelayUnset stands in for "no cap" when MaxDelay is zero.
const maxDelayUnset = 24 * time.Hour

// Policy describes how often and how patiently to retry.
type Policy struct {
	Attempts    int
	Delay       time.Duration
	MaxDelay    time.Duration
	Exponential bool

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// Doubling returns a policy whose delay doubles after each failure, up to ceiling.
func Doubling(attempts int, delay, ceiling time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay, MaxDelay: ceiling, Exponential: true}
}

// schedule returns the delay sequence for p.
func (p Policy) schedule() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Delay)
	}

	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = maxDelayUnset
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Delay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         ceiling,
	}
	b.Reset()
	return b
}

func (p Policy) clock() clockwork.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clockwork.NewRealClock()
}

// Do calls op until it succeeds, the attempts run out or ctx is done. The
// returned error wraps ErrExhausted and the last failure.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	logger := logging.Get("retry")
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	sched := p.schedule()
	clock := p.clock()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = op(ctx, attempt); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := sched.NextBackOff()
		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("attempts", attempts).
			Dur("delay", delay).
			Msg("Attempt failed, retrying")

		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Shell runs script with sh -c under policy p and returns the exit code of
// the last attempt.
func Shell(ctx context.Context, runner command.Runner, script string, p Policy) (int, error) {
	code := 0
	err := Do(ctx, p, func(ctx context.Context, _ int) error {
		_, err := runner.Run(ctx, command.Shell(script))
		code = command.ExitCode(err)
		return err
	})
	return code, err
}

// Simple runs script up to attempts times with a fixed delay.
func Simple(ctx context.Context, runner command.Runner, script string, attempts int, delay time.Duration) (int, error) {
	return Shell(ctx, runner, script, Fixed(attempts, delay))
}

// Exponential runs script up to attempts times, doubling the delay from
// initial up to ceiling.
func Exponential(ctx context.Context, runner command.Runner, script string, attempts int, initial, ceiling time.Duration) (int, error) {
	return Shell(ctx, runner, script, Doubling(attempts, initial, ceiling))
}
