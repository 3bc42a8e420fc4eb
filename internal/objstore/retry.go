package objstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Transport wraps remote operations with the QPS guard and bounded
// exponential-backoff retries over the closed set of transient error kinds.
// After exhausting attempts it surfaces the last error unmodified; callers
// treat that as terminal for the call, not for the session.
type Transport struct {
	limiter     *Limiter
	maxAttempts int
	initial     time.Duration
	ceiling     time.Duration
	logger      *zap.Logger
}

// TransportOptions tunes retry behavior. Zero values take defaults matching
// the store's observed throttling profile.
type TransportOptions struct {
	MaxQPS      float64
	MaxAttempts int
	Initial     time.Duration
	Ceiling     time.Duration
}

func NewTransport(opts TransportOptions, logger *zap.Logger) *Transport {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 6
	}
	if opts.Initial <= 0 {
		opts.Initial = 1500 * time.Millisecond
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = 6 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		limiter:     NewLimiter(opts.MaxQPS),
		maxAttempts: opts.MaxAttempts,
		initial:     opts.Initial,
		ceiling:     opts.Ceiling,
		logger:      logger,
	}
}

// Do executes op, retrying transient failures. Each attempt passes through
// the rate limiter. Permanent errors stop retrying immediately.
func (t *Transport) Do(ctx context.Context, name string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initial
	bo.MaxInterval = t.ceiling
	bo.RandomizationFactor = 0

	attempt := 0
	run := func() error {
		attempt++
		t.limiter.Wait()
		err := Classify(op())
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= t.maxAttempts {
			return backoff.Permanent(err)
		}
		t.logger.Warn("remote call retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}
	return backoff.Retry(run, backoff.WithContext(bo, ctx))
}
