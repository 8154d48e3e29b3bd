package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/gluerun/internal/glue"
	"github.com/3cpo-dev/gluerun/pkg/api"
)

// JobRunner submits a Glue job and blocks until the run stops or succeeds.
type JobRunner struct {
	runner
}

func NewJobRunner(factory glue.ClientFactory, opts ...Option) *JobRunner {
	return &JobRunner{runner: newRunner(factory, opts)}
}

// Run starts spec.JobName and polls the returned run until it is terminal.
// A STOPPED run yields a *RemoteJobError carrying the remote error text; a
// failed start call yields a *SubmissionError and no status is ever fetched.
func (r *JobRunner) Run(ctx context.Context, spec api.JobSpec) error {
	if err := ValidateJobSpec(spec); err != nil {
		return err
	}
	interval := pollInterval(spec.PollInterval)
	logger := log.With().Str("job", spec.JobName).Logger()

	client, err := r.factory(ctx)
	if err != nil {
		return fmt.Errorf("acquire glue client: %w", err)
	}

	logger.Info().Int("arguments", len(spec.Arguments)).Msg("Starting job")
	runID, err := client.StartJobRun(ctx, spec.JobName, spec.Arguments)
	r.metrics.Submission(api.KindJob, err)
	if err != nil {
		return &SubmissionError{Kind: api.KindJob, Name: spec.JobName, Err: err}
	}
	logger = logger.With().Str("run_id", runID).Logger()
	logger.Info().Msg("Started job")

	inv := r.begin(ctx, api.KindJob, spec.JobName, runID)
	var last glue.JobRun
	err = r.poll(ctx, interval, logger, func(ctx context.Context) (string, bool, error) {
		run, err := client.GetJobRun(ctx, spec.JobName, runID)
		if err != nil {
			return "", false, fmt.Errorf("get job run %s: %w", runID, err)
		}
		last = run
		inv.polled(ctx, run.State)
		return run.State, r.classifyJobRun(run.State).Terminal(), nil
	})
	if err != nil {
		inv.finish(ctx, api.OutcomeFailed, err.Error())
		return err
	}

	if r.classifyJobRun(last.State) == api.RunSucceeded {
		logger.Info().Msg("Glue job run succeeded")
		inv.finish(ctx, api.OutcomeSucceeded, "")
		return nil
	}

	msg := last.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("run ended in state %s", last.State)
	}
	logger.Error().Str("state", last.State).Str("error", msg).Msg("Glue job run failed")
	inv.finish(ctx, api.OutcomeFailed, msg)
	return &RemoteJobError{Kind: api.KindJob, Name: spec.JobName, RunID: runID, Message: msg}
}

func (r *runner) classifyJobRun(state string) api.RunStatus {
	switch {
	case state == glue.JobRunSucceeded:
		return api.RunSucceeded
	case state == glue.JobRunStopped, r.failureStates[state]:
		return api.RunStopped
	default:
		return api.RunRunning
	}
}
