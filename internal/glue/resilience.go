package glue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig defines retry behavior for status fetches.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig disables retries; a failed status fetch aborts polling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    0,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryConfigFrom fills unset fields of the configured retry block with defaults.
func RetryConfigFrom(cfg Config) RetryConfig {
	rc := DefaultRetryConfig()
	rc.MaxRetries = cfg.Retry.MaxRetries
	if cfg.Retry.InitialDelayMS > 0 {
		rc.InitialDelay = time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond
	}
	if cfg.Retry.MaxDelayMS > 0 {
		rc.MaxDelay = time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	}
	if cfg.Retry.BackoffFactor > 0 {
		rc.BackoffFactor = cfg.Retry.BackoffFactor
	}
	return rc
}

// retryingClient retries GetJobRun and GetCrawler. Start calls pass through
// untouched so a failed submission is never repeated.
type retryingClient struct {
	Client
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingClient wraps c so status fetches are retried with backoff.
func NewRetryingClient(c Client, cfg RetryConfig) Client {
	return &retryingClient{Client: c, cfg: cfg, sleep: sleepContext}
}

func (c *retryingClient) GetJobRun(ctx context.Context, jobName, runID string) (JobRun, error) {
	var run JobRun
	err := c.do(ctx, "GetJobRun", func() error {
		var err error
		run, err = c.Client.GetJobRun(ctx, jobName, runID)
		return err
	})
	return run, err
}

func (c *retryingClient) GetCrawler(ctx context.Context, name string) (Crawler, error) {
	var cr Crawler
	err := c.do(ctx, "GetCrawler", func() error {
		var err error
		cr, err = c.Client.GetCrawler(ctx, name)
		return err
	})
	return cr, err
}

func (c *retryingClient) do(ctx context.Context, op string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		delay := c.calculateDelay(attempt)
		log.Warn().
			Err(lastErr).
			Str("op", op).
			Int("attempt", attempt+1).
			Int("max_retries", c.cfg.MaxRetries).
			Dur("delay", delay).
			Msg("Status fetch failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// calculateDelay calculates exponential backoff delay with jitter
func (c *retryingClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.cfg.InitialDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt))

	// Apply jitter (±25%)
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(c.cfg.MaxDelay) {
		delay = float64(c.cfg.MaxDelay)
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
