package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound exchanges with a time/rate token bucket.
// It is safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	logFn   func() *slog.Logger
}

// New returns a Limiter allowing rps exchanges per second with the given
// burst. logFn lazily resolves the logger at wait time, making option
// ordering irrelevant. A nil-returning logFn skips the calls to
// *Limiter.Allow().
func New(rps, burst int, logFn func() *slog.Logger) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	l := &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		logFn:   logFn,
	}

	return l, nil
}

// Config reports the limiter's settings.
func (l *Limiter) Config() Config {
	return Config{RPS: l.rps, Burst: l.burst}
}

// Wait blocks until a token is available for an exchange with target.
// target is only used for logging.
func (l *Limiter) Wait(ctx context.Context, target string) error {
	if l == nil || l.limiter == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	logger := l.logFn()
	if logger != nil && !l.limiter.Allow() {
		logger.Info("throttle tokens exhausted", "rate", l.rps, "burst", l.burst, "target", target)

		defer func() {
			logger.Info("throttle wait complete", "waited", waited.String(), "rate", l.rps, "burst", l.burst)
		}()

		// Allow consumed nothing; fall through to Wait for the next token.
	} else if logger != nil {
		return nil // Allow already took the token.
	}

	start := time.Now()

	err := l.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}
