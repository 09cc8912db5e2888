package qualtrics

import (
	"fmt"
)

// TransportError is a network failure or a non-2xx response. It is never
// retried by the client.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	// Message is the platform supplied error message, if any.
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Message != "" {
			return fmt.Sprintf("qualtrics %s: %s returned %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("qualtrics %s: %s returned %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("qualtrics %s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError means the platform does not know the requested survey.
type NotFoundError struct {
	SurveyID string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("qualtrics: survey %q not found: %s", e.SurveyID, e.Message)
	}
	return fmt.Sprintf("qualtrics: survey %q not found", e.SurveyID)
}

// ExportFailedError is returned when a response export job ends in a
// failed or cancelled state, or when the poll policy gave up waiting on it.
type ExportFailedError struct {
	SurveyID string
	JobID    string
	// Status is the last status the job reported.
	Status   string
	TimedOut bool
}

func (e *ExportFailedError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf(
			"qualtrics: export %s of survey %s did not finish in time (last status %q)",
			e.JobID, e.SurveyID, e.Status,
		)
	}
	return fmt.Sprintf("qualtrics: export %s of survey %s ended with status %q", e.JobID, e.SurveyID, e.Status)
}

// MalformedExportError means a downloaded export does not have the shape
// it is expected to have: a zip archive holding exactly one CSV file whose
// header is followed by an ImportId metadata row.
type MalformedExportError struct {
	Reason string
}

func (e *MalformedExportError) Error() string {
	return fmt.Sprintf("qualtrics: malformed export: %s", e.Reason)
}
