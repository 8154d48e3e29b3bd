package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/gluerun/internal/glue"
	"github.com/3cpo-dev/gluerun/internal/telemetry"
	"github.com/3cpo-dev/gluerun/pkg/api"
)

// Option configures a JobRunner or CrawlerRunner.
type Option func(*runner)

// WithWaiter replaces the timer used between polls.
func WithWaiter(w Waiter) Option {
	return func(r *runner) { r.waiter = w }
}

// WithRecorder attaches a run history recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *runner) { r.recorder = rec }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithJobFailureStates makes the JobRunner treat the given raw states like
// STOPPED. Crawler runs ignore it.
func WithJobFailureStates(states ...string) Option {
	return func(r *runner) {
		for _, s := range states {
			r.failureStates[s] = true
		}
	}
}

// runner holds the configuration shared by both runners. It is never
// mutated after construction, so one runner may serve concurrent Runs.
type runner struct {
	factory       glue.ClientFactory
	waiter        Waiter
	recorder      Recorder
	metrics       *telemetry.Metrics
	failureStates map[string]bool
	now           func() time.Time
}

func newRunner(factory glue.ClientFactory, opts []Option) runner {
	r := runner{
		factory:       factory,
		waiter:        TimerWaiter,
		failureStates: map[string]bool{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func pollInterval(d time.Duration) time.Duration {
	if d == 0 {
		return api.DefaultPollInterval
	}
	return d
}

// statusFetch returns the raw remote state and whether it is terminal.
type statusFetch func(ctx context.Context) (state string, terminal bool, err error)

// poll calls fetch until it reports a terminal state, waiting interval
// between non-terminal fetches. No wait follows the terminal fetch.
func (r *runner) poll(ctx context.Context, interval time.Duration, logger zerolog.Logger, fetch statusFetch) error {
	logger.Info().Msg("Start polling for completion")
	for {
		state, terminal, err := fetch(ctx)
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}
		logger.Info().Str("state", state).Dur("interval", interval).Msg("Current state")
		if err := r.waiter.Wait(ctx, interval); err != nil {
			return fmt.Errorf("polling interrupted in state %s: %w", state, err)
		}
	}
}

// invocation tracks one run for the recorder and metrics.
type invocation struct {
	r       *runner
	kind    api.Kind
	id      string
	started time.Time
}

func (r *runner) begin(ctx context.Context, kind api.Kind, name, remoteRunID string) *invocation {
	inv := &invocation{r: r, kind: kind, id: uuid.NewString(), started: r.now()}
	if r.recorder != nil {
		err := r.recorder.RunStarted(ctx, api.RunRecord{
			ID:          inv.id,
			Kind:        kind,
			Name:        name,
			RemoteRunID: remoteRunID,
			StartedAt:   inv.started,
		})
		warnRecorder(err, inv.id)
	}
	return inv
}

func (inv *invocation) polled(ctx context.Context, state string) {
	inv.r.metrics.Poll(inv.kind, state)
	if inv.r.recorder != nil {
		warnRecorder(inv.r.recorder.RunPolled(ctx, inv.id, state), inv.id)
	}
}

func (inv *invocation) finish(ctx context.Context, outcome api.Outcome, message string) {
	inv.r.metrics.RunFinished(inv.kind, outcome, inv.r.now().Sub(inv.started))
	if inv.r.recorder != nil {
		// the run context may already be cancelled; the history row should still close
		warnRecorder(inv.r.recorder.RunFinished(context.WithoutCancel(ctx), inv.id, outcome, message), inv.id)
	}
}

func warnRecorder(err error, id string) {
	if err != nil {
		log.Warn().Err(err).Str("record", id).Msg("Failed to record run history")
	}
}
