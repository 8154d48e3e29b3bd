package api

import "time"

// DefaultPollInterval is used when a spec leaves PollInterval unset.
const DefaultPollInterval = 60 * time.Second

// JobSpec describes one Glue job invocation. It must not change once a run starts.
type JobSpec struct {
	JobName      string            `json:"job_name" yaml:"job_name"`
	Arguments    map[string]string `json:"arguments" yaml:"arguments"`
	PollInterval time.Duration     `json:"poll_interval" yaml:"poll_interval"`
}

// CrawlerSpec describes one Glue crawler invocation.
type CrawlerSpec struct {
	CrawlerName  string        `json:"crawler_name" yaml:"crawler_name"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

type Kind string

const (
	KindJob     Kind = "job"
	KindCrawler Kind = "crawler"
)

// RunStatus is the classified view of a raw remote state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunStopped   RunStatus = "stopped"
	RunCancelled RunStatus = "cancelled"
	RunIdle      RunStatus = "idle"
)

// Terminal reports whether no further transitions occur after s.
func (s RunStatus) Terminal() bool {
	return s != RunRunning
}

// Outcome is the final result of one invocation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// RunRecord is a history entry for one invocation.
type RunRecord struct {
	ID          string     `json:"id" yaml:"id"`
	Kind        Kind       `json:"kind" yaml:"kind"`
	Name        string     `json:"name" yaml:"name"`
	RemoteRunID string     `json:"remote_run_id,omitempty" yaml:"remote_run_id,omitempty"`
	State       string     `json:"state" yaml:"state"`
	Polls       int        `json:"polls" yaml:"polls"`
	Outcome     Outcome    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Message     string     `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}
