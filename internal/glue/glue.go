package glue

import "context"

// Raw Glue job run states.
const (
	JobRunStarting  = "STARTING"
	JobRunRunning   = "RUNNING"
	JobRunStopping  = "STOPPING"
	JobRunStopped   = "STOPPED"
	JobRunSucceeded = "SUCCEEDED"
	JobRunFailed    = "FAILED"
	JobRunTimeout   = "TIMEOUT"
	JobRunError     = "ERROR"
	JobRunWaiting   = "WAITING"
	JobRunExpired   = "EXPIRED"
)

// Raw Glue crawler states.
const (
	CrawlerReady    = "READY"
	CrawlerRunning  = "RUNNING"
	CrawlerStopping = "STOPPING"
)

// Raw Glue last-crawl statuses.
const (
	LastCrawlSucceeded = "SUCCEEDED"
	LastCrawlCancelled = "CANCELLED"
	LastCrawlFailed    = "FAILED"
)

type JobRun struct {
	ID           string
	State        string
	ErrorMessage string
}

type LastCrawl struct {
	Status       string
	ErrorMessage string
}

type Crawler struct {
	Name      string
	State     string
	LastCrawl *LastCrawl
}

// Client is the subset of the Glue API the runners need.
type Client interface {
	StartJobRun(ctx context.Context, jobName string, args map[string]string) (string, error)
	GetJobRun(ctx context.Context, jobName, runID string) (JobRun, error)
	StartCrawler(ctx context.Context, name string) error
	GetCrawler(ctx context.Context, name string) (Crawler, error)
}

// ClientFactory builds a fresh Client for one run.
type ClientFactory func(ctx context.Context) (Client, error)

// Builder turns a resolved Connection into a Client.
type Builder func(ctx context.Context, conn Connection) (Client, error)
