package retry

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/radioops/transmitd/internal/logfields"
)

// Supervisor wraps fallible hardware operations with unbounded
// exponential retry. Retries continue until the operation succeeds or
// the context is cancelled (shutdown, schedule reload, or the window's
// deadline); each Run starts at the base delay, so one success resets
// the backoff.
type Supervisor struct {
	policy Policy
	logger *slog.Logger
	clock  clockwork.Clock

	// onAttempt, when set, observes every failed attempt (metrics).
	onAttempt func(name string)
}

// NewSupervisor constructs a Supervisor with the given policy.
func NewSupervisor(policy Policy, logger *slog.Logger, clock clockwork.Clock) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Supervisor{policy: policy, logger: logger, clock: clock}
}

// OnAttempt registers an observer called with the operation name on
// every failed attempt.
func (s *Supervisor) OnAttempt(fn func(name string)) { s.onAttempt = fn }

// Policy returns the supervisor's backoff policy.
func (s *Supervisor) Policy() Policy { return s.policy }

// Run invokes op until it succeeds or ctx is cancelled. Every failed
// attempt is logged with the attempt count and last error. The returned
// error is nil on success or ctx.Err() on cancellation.
func (s *Supervisor) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("operation recovered",
					logfields.Operation(name),
					logfields.Attempt(attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.onAttempt != nil {
			s.onAttempt(name)
		}
		delay := s.policy.Delay(attempt)
		s.logger.Warn("operation failed; backing off",
			logfields.Operation(name),
			logfields.Attempt(attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}
