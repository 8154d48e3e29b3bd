package core

import (
	"fmt"
	"time"

	"github.com/3cpo-dev/gluerun/pkg/api"
)

// CancelledMessage is reported when a crawl was cancelled outside this run.
const CancelledMessage = "crawler was cancelled by another actor"

// SubmissionError means the start call failed; polling never began.
type SubmissionError struct {
	Kind api.Kind
	Name string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("start %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RemoteJobError carries a terminal failure reported by Glue.
type RemoteJobError struct {
	Kind      api.Kind
	Name      string
	RunID     string
	Message   string
	Cancelled bool
}

func (e *RemoteJobError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("glue %s %s (run %s) failed: %s", e.Kind, e.Name, e.RunID, e.Message)
	}
	return fmt.Sprintf("glue %s %s failed: %s", e.Kind, e.Name, e.Message)
}

// ValidationError represents an invalid run spec
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

func validateName(field, name string) error {
	if name == "" {
		return ValidationError{Field: field, Value: "", Message: "name is required"}
	}
	return nil
}

func validateInterval(d time.Duration) error {
	if d < 0 {
		return ValidationError{Field: "poll_interval", Value: d.String(), Message: "poll interval must not be negative"}
	}
	return nil
}

// ValidateJobSpec checks a job spec before anything is submitted.
func ValidateJobSpec(spec api.JobSpec) error {
	if err := validateName("job_name", spec.JobName); err != nil {
		return err
	}
	for k := range spec.Arguments {
		if k == "" {
			return ValidationError{Field: "arguments", Value: "", Message: "argument keys must not be empty"}
		}
	}
	return validateInterval(spec.PollInterval)
}

// ValidateCrawlerSpec checks a crawler spec before anything is submitted.
func ValidateCrawlerSpec(spec api.CrawlerSpec) error {
	if err := validateName("crawler_name", spec.CrawlerName); err != nil {
		return err
	}
	return validateInterval(spec.PollInterval)
}
