package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/gluerun/internal/glue"
	"github.com/3cpo-dev/gluerun/pkg/api"
)

// CrawlerRunner starts a Glue crawler and blocks until it is READY again.
//
// Glue keys crawler status by name only. The last crawl inspected once the
// crawler is READY is assumed to be the one this Run started; if another
// actor starts the same crawler concurrently the result may belong to that
// crawl instead. Callers must not trigger one crawler from several places.
type CrawlerRunner struct {
	runner
}

func NewCrawlerRunner(factory glue.ClientFactory, opts ...Option) *CrawlerRunner {
	return &CrawlerRunner{runner: newRunner(factory, opts)}
}

// Run starts spec.CrawlerName and polls it until READY, then reports the
// status of the last crawl.
func (r *CrawlerRunner) Run(ctx context.Context, spec api.CrawlerSpec) error {
	if err := ValidateCrawlerSpec(spec); err != nil {
		return err
	}
	interval := pollInterval(spec.PollInterval)
	logger := log.With().Str("crawler", spec.CrawlerName).Logger()

	client, err := r.factory(ctx)
	if err != nil {
		return fmt.Errorf("acquire glue client: %w", err)
	}

	logger.Info().Msg("Starting crawler")
	err = client.StartCrawler(ctx, spec.CrawlerName)
	r.metrics.Submission(api.KindCrawler, err)
	if err != nil {
		return &SubmissionError{Kind: api.KindCrawler, Name: spec.CrawlerName, Err: err}
	}
	logger.Info().Msg("Started crawler")

	inv := r.begin(ctx, api.KindCrawler, spec.CrawlerName, "")
	var last glue.Crawler
	err = r.poll(ctx, interval, logger, func(ctx context.Context) (string, bool, error) {
		cr, err := client.GetCrawler(ctx, spec.CrawlerName)
		if err != nil {
			return "", false, fmt.Errorf("get crawler %s: %w", spec.CrawlerName, err)
		}
		last = cr
		inv.polled(ctx, cr.State)
		return cr.State, classifyCrawler(cr).Terminal(), nil
	})
	if err != nil {
		inv.finish(ctx, api.OutcomeFailed, err.Error())
		return err
	}

	if last.LastCrawl == nil {
		err := fmt.Errorf("crawler %s is %s but reports no last crawl", spec.CrawlerName, last.State)
		inv.finish(ctx, api.OutcomeFailed, err.Error())
		return err
	}

	switch last.LastCrawl.Status {
	case glue.LastCrawlFailed:
		msg := last.LastCrawl.ErrorMessage
		logger.Error().Str("error", msg).Msg("Glue crawl failed")
		inv.finish(ctx, api.OutcomeFailed, msg)
		return &RemoteJobError{Kind: api.KindCrawler, Name: spec.CrawlerName, Message: msg}
	case glue.LastCrawlCancelled:
		logger.Error().Msg("Glue crawl was cancelled")
		inv.finish(ctx, api.OutcomeCancelled, CancelledMessage)
		return &RemoteJobError{Kind: api.KindCrawler, Name: spec.CrawlerName, Message: CancelledMessage, Cancelled: true}
	}

	logger.Info().Str("last_crawl", last.LastCrawl.Status).Msg("Glue crawler succeeded")
	inv.finish(ctx, api.OutcomeSucceeded, "")
	return nil
}

func classifyCrawler(cr glue.Crawler) api.RunStatus {
	if cr.State == glue.CrawlerReady {
		return api.RunIdle
	}
	return api.RunRunning
}
