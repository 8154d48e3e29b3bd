package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/3cpo-dev/gluerun/internal/glue"
	"github.com/3cpo-dev/gluerun/pkg/api"
)

// scriptedClient replays status responses in order, repeating the last one.
type scriptedClient struct {
	runID    string
	startErr error
	jobRuns  []glue.JobRun
	crawlers []glue.Crawler
	fetchErr error

	starts   int
	fetches  int
	lastArgs map[string]string
}

func (c *scriptedClient) StartJobRun(ctx context.Context, jobName string, args map[string]string) (string, error) {
	c.starts++
	c.lastArgs = args
	if c.startErr != nil {
		return "", c.startErr
	}
	return c.runID, nil
}

func (c *scriptedClient) GetJobRun(ctx context.Context, jobName, runID string) (glue.JobRun, error) {
	i := c.fetches
	c.fetches++
	if c.fetchErr != nil {
		return glue.JobRun{}, c.fetchErr
	}
	if i >= len(c.jobRuns) {
		i = len(c.jobRuns) - 1
	}
	return c.jobRuns[i], nil
}

func (c *scriptedClient) StartCrawler(ctx context.Context, name string) error {
	c.starts++
	return c.startErr
}

func (c *scriptedClient) GetCrawler(ctx context.Context, name string) (glue.Crawler, error) {
	i := c.fetches
	c.fetches++
	if c.fetchErr != nil {
		return glue.Crawler{}, c.fetchErr
	}
	if i >= len(c.crawlers) {
		i = len(c.crawlers) - 1
	}
	return c.crawlers[i], nil
}

func factoryFor(c glue.Client) glue.ClientFactory {
	return func(ctx context.Context) (glue.Client, error) { return c, nil }
}

type countingWaiter struct {
	waits []time.Duration
}

func (w *countingWaiter) Wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func jobStates(states ...string) []glue.JobRun {
	out := make([]glue.JobRun, len(states))
	for i, s := range states {
		out[i] = glue.JobRun{ID: "jr_1", State: s}
	}
	return out
}

func TestJobRunnerSucceeds(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(glue.JobRunRunning, glue.JobRunRunning, glue.JobRunSucceeded)}
	w := &countingWaiter{}
	r := NewJobRunner(factoryFor(client), WithWaiter(w))

	args := map[string]string{"--day": "2024-01-01"}
	err := r.Run(context.Background(), api.JobSpec{JobName: "nightly", Arguments: args, PollInterval: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.starts != 1 || client.fetches != 3 || len(w.waits) != 2 {
		t.Fatalf("starts=%d fetches=%d waits=%d", client.starts, client.fetches, len(w.waits))
	}
	for _, d := range w.waits {
		if d != 5*time.Second {
			t.Fatalf("unexpected wait %v", d)
		}
	}
	if client.lastArgs["--day"] != "2024-01-01" {
		t.Fatalf("arguments not forwarded")
	}
}

func TestJobRunnerTerminalOnFirstFetch(t *testing.T) {
	for _, state := range []string{glue.JobRunSucceeded, glue.JobRunStopped} {
		client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(state)}
		w := &countingWaiter{}
		_ = NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"})
		if client.fetches != 1 || len(w.waits) != 0 {
			t.Fatalf("%s: fetches=%d waits=%d", state, client.fetches, len(w.waits))
		}
	}
}

func TestJobRunnerStopped(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: []glue.JobRun{
		{ID: "jr_1", State: glue.JobRunRunning},
		{ID: "jr_1", State: glue.JobRunStopped, ErrorMessage: "OOM"},
	}}
	w := &countingWaiter{}
	err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"})
	if err == nil || !strings.Contains(err.Error(), "OOM") {
		t.Fatalf("expected OOM error, got %v", err)
	}
	var remote *RemoteJobError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteJobError, got %T", err)
	}
	if remote.Message != "OOM" || remote.RunID != "jr_1" || remote.Cancelled {
		t.Fatalf("unexpected error %+v", remote)
	}
	if len(w.waits) != 1 {
		t.Fatalf("waits=%d", len(w.waits))
	}
}

func TestJobRunnerDefaultInterval(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(glue.JobRunStarting, glue.JobRunSucceeded)}
	w := &countingWaiter{}
	if err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w.waits) != 1 || w.waits[0] != api.DefaultPollInterval {
		t.Fatalf("waits=%v", w.waits)
	}
}

func TestJobRunnerKeepsPollingOnOtherStates(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(glue.JobRunFailed, glue.JobRunTimeout, glue.JobRunSucceeded)}
	w := &countingWaiter{}
	if err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.fetches != 3 || len(w.waits) != 2 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestJobRunnerExtraFailureStates(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: []glue.JobRun{
		{ID: "jr_1", State: glue.JobRunRunning},
		{ID: "jr_1", State: glue.JobRunTimeout},
	}}
	w := &countingWaiter{}
	r := NewJobRunner(factoryFor(client), WithWaiter(w), WithJobFailureStates(glue.JobRunFailed, glue.JobRunTimeout))
	err := r.Run(context.Background(), api.JobSpec{JobName: "nightly"})
	var remote *RemoteJobError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteJobError, got %v", err)
	}
	if !strings.Contains(remote.Message, glue.JobRunTimeout) {
		t.Fatalf("message should name the state: %q", remote.Message)
	}
	if client.fetches != 2 || len(w.waits) != 1 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestJobRunnerSubmissionFailure(t *testing.T) {
	boom := errors.New("EntityNotFoundException: job nightly not found")
	client := &scriptedClient{startErr: boom}
	w := &countingWaiter{}
	err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected submission error to wrap the original, got %v", err)
	}
	var sub *SubmissionError
	if !errors.As(err, &sub) || sub.Kind != api.KindJob {
		t.Fatalf("expected SubmissionError, got %T", err)
	}
	if client.fetches != 0 || len(w.waits) != 0 {
		t.Fatalf("polling must not start: fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestJobRunnerFetchErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	client := &scriptedClient{runID: "jr_1", fetchErr: boom}
	w := &countingWaiter{}
	err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.JobSpec{JobName: "nightly"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if client.fetches != 1 || len(w.waits) != 0 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestJobRunnerCancelledWhileWaiting(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(glue.JobRunRunning)}
	ctx, cancel := context.WithCancel(context.Background())
	w := WaiterFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return TimerWaiter.Wait(ctx, time.Hour)
	})
	err := NewJobRunner(factoryFor(client), WithWaiter(w)).Run(ctx, api.JobSpec{JobName: "nightly"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.fetches != 1 {
		t.Fatalf("fetches=%d", client.fetches)
	}
}

func TestJobRunnerFactoryError(t *testing.T) {
	boom := errors.New("connection not registered: prod")
	factory := func(ctx context.Context) (glue.Client, error) { return nil, boom }
	err := NewJobRunner(factory).Run(context.Background(), api.JobSpec{JobName: "nightly"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	var sub *SubmissionError
	if errors.As(err, &sub) {
		t.Fatalf("factory failure is not a submission error")
	}
}

func TestJobRunnerValidation(t *testing.T) {
	called := false
	factory := func(ctx context.Context) (glue.Client, error) {
		called = true
		return &scriptedClient{}, nil
	}
	cases := []api.JobSpec{
		{},
		{JobName: "nightly", PollInterval: -time.Second},
		{JobName: "nightly", Arguments: map[string]string{"": "x"}},
	}
	for _, spec := range cases {
		var verr ValidationError
		if err := NewJobRunner(factory).Run(context.Background(), spec); !errors.As(err, &verr) {
			t.Fatalf("%+v: expected ValidationError, got %v", spec, err)
		}
	}
	if called {
		t.Fatalf("factory must not be called for invalid specs")
	}
}

func TestTimerWaiter(t *testing.T) {
	if err := TimerWaiter.Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := TimerWaiter.Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func readyCrawler(status, msg string) glue.Crawler {
	return glue.Crawler{Name: "raw", State: glue.CrawlerReady, LastCrawl: &glue.LastCrawl{Status: status, ErrorMessage: msg}}
}

func TestCrawlerRunnerFailed(t *testing.T) {
	client := &scriptedClient{crawlers: []glue.Crawler{
		{Name: "raw", State: glue.CrawlerRunning},
		{Name: "raw", State: glue.CrawlerRunning},
		readyCrawler(glue.LastCrawlFailed, "bad schema"),
	}}
	w := &countingWaiter{}
	err := NewCrawlerRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.CrawlerSpec{CrawlerName: "raw", PollInterval: time.Second})
	if err == nil || !strings.Contains(err.Error(), "bad schema") {
		t.Fatalf("expected bad schema error, got %v", err)
	}
	var remote *RemoteJobError
	if !errors.As(err, &remote) || remote.Kind != api.KindCrawler {
		t.Fatalf("expected crawler RemoteJobError, got %T", err)
	}
	if client.fetches != 3 || len(w.waits) != 2 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestCrawlerRunnerCancelled(t *testing.T) {
	client := &scriptedClient{crawlers: []glue.Crawler{readyCrawler(glue.LastCrawlCancelled, "stopped by ops")}}
	err := NewCrawlerRunner(factoryFor(client), WithWaiter(&countingWaiter{})).Run(context.Background(), api.CrawlerSpec{CrawlerName: "raw"})
	var remote *RemoteJobError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteJobError, got %v", err)
	}
	if !remote.Cancelled || remote.Message != CancelledMessage {
		t.Fatalf("unexpected error %+v", remote)
	}
	if strings.Contains(err.Error(), "stopped by ops") {
		t.Fatalf("remote message must be ignored for cancelled crawls")
	}
}

func TestCrawlerRunnerSucceeded(t *testing.T) {
	client := &scriptedClient{crawlers: []glue.Crawler{
		{Name: "raw", State: glue.CrawlerRunning},
		{Name: "raw", State: glue.CrawlerStopping},
		readyCrawler(glue.LastCrawlSucceeded, ""),
	}}
	w := &countingWaiter{}
	if err := NewCrawlerRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.CrawlerSpec{CrawlerName: "raw"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.fetches != 3 || len(w.waits) != 2 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestCrawlerRunnerSubmissionFailure(t *testing.T) {
	boom := errors.New("CrawlerRunningException")
	client := &scriptedClient{startErr: boom}
	w := &countingWaiter{}
	err := NewCrawlerRunner(factoryFor(client), WithWaiter(w)).Run(context.Background(), api.CrawlerSpec{CrawlerName: "raw"})
	var sub *SubmissionError
	if !errors.As(err, &sub) || !errors.Is(err, boom) {
		t.Fatalf("expected SubmissionError wrapping original, got %v", err)
	}
	if client.fetches != 0 || len(w.waits) != 0 {
		t.Fatalf("fetches=%d waits=%d", client.fetches, len(w.waits))
	}
}

func TestCrawlerRunnerWithoutLastCrawl(t *testing.T) {
	client := &scriptedClient{crawlers: []glue.Crawler{{Name: "raw", State: glue.CrawlerReady}}}
	err := NewCrawlerRunner(factoryFor(client), WithWaiter(&countingWaiter{})).Run(context.Background(), api.CrawlerSpec{CrawlerName: "raw"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var remote *RemoteJobError
	if errors.As(err, &remote) {
		t.Fatalf("missing last crawl is not a remote failure")
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RunStarted(ctx context.Context, rec api.RunRecord) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingRecorder) RunPolled(ctx context.Context, id, state string) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingRecorder) RunFinished(ctx context.Context, id string, outcome api.Outcome, message string) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecorderFailuresDoNotFailRun(t *testing.T) {
	client := &scriptedClient{runID: "jr_1", jobRuns: jobStates(glue.JobRunRunning, glue.JobRunSucceeded)}
	rec := &failingRecorder{}
	err := NewJobRunner(factoryFor(client), WithWaiter(&countingWaiter{}), WithRecorder(rec)).Run(context.Background(), api.JobSpec{JobName: "nightly"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.calls != 4 {
		t.Fatalf("expected start, two polls and finish, got %d calls", rec.calls)
	}
}

func TestRunnersRecordHistory(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	job := &scriptedClient{runID: "jr_7", jobRuns: jobStates(glue.JobRunRunning, glue.JobRunRunning, glue.JobRunSucceeded)}
	if err := NewJobRunner(factoryFor(job), WithWaiter(&countingWaiter{}), WithRecorder(store)).Run(ctx, api.JobSpec{JobName: "nightly"}); err != nil {
		t.Fatalf("job Run: %v", err)
	}
	crawler := &scriptedClient{crawlers: []glue.Crawler{readyCrawler(glue.LastCrawlFailed, "bad schema")}}
	_ = NewCrawlerRunner(factoryFor(crawler), WithWaiter(&countingWaiter{}), WithRecorder(store)).Run(ctx, api.CrawlerSpec{CrawlerName: "raw"})

	jobs, err := store.ListRuns(ctx, RunFilter{Kind: api.KindJob})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job run, got %d", len(jobs))
	}
	got := jobs[0]
	if got.RemoteRunID != "jr_7" || got.Polls != 3 || got.State != glue.JobRunSucceeded || got.Outcome != api.OutcomeSucceeded || got.FinishedAt == nil {
		t.Fatalf("unexpected job record %+v", got)
	}

	crawls, err := store.ListRuns(ctx, RunFilter{Kind: api.KindCrawler, Name: "raw"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(crawls) != 1 || crawls[0].Outcome != api.OutcomeFailed || crawls[0].Message != "bad schema" {
		t.Fatalf("unexpected crawler records %+v", crawls)
	}
}
