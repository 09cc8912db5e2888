package qualtrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	ExportComplete   = "complete"
	ExportFailed     = "failed"
	ExportCancelled  = "cancelled"
	ExportInProgress = "in progress"
)

const DefaultPollInterval = 5 * time.Second

// endDate is always sent with seconds precision in UTC.
const endDateLayout = "2006-01-02T15:04:05Z"

// PollPolicy controls how an export job is waited on. A zero MaxAttempts or
// MaxWait means there is no bound beyond the context.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxWait     time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval}
}

type ExportRequest struct {
	SurveyID  string
	UseLabels bool
	// EndDate caps the responses included in the export, it defaults to the
	// current time of the client's clock.
	EndDate time.Time
	Poll    PollPolicy
}

type exportBody struct {
	Format    string `json:"format"`
	UseLabels bool   `json:"useLabels"`
	SurveyID  string `json:"surveyId"`
	EndDate   string `json:"endDate"`
}

// ExportStatus is the state of an export job as reported by the platform.
type ExportStatus struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	PercentComplete float64 `json:"percentComplete"`
	File            string  `json:"file"`
}

// StartExport creates an export job and returns its id.
func (c *Client) StartExport(ctx context.Context, req ExportRequest) (string, error) {
	endDate := req.EndDate
	if endDate.IsZero() {
		endDate = c.clock.Now()
	}
	body := exportBody{
		Format:    "csv",
		UseLabels: req.UseLabels,
		SurveyID:  req.SurveyID,
		EndDate:   endDate.UTC().Format(endDateLayout),
	}

	env, status, err := c.send(ctx, report_client_request_export, http.MethodPost, exportsPath, body)
	if status == http.StatusNotFound {
		return "", &NotFoundError{SurveyID: req.SurveyID, Message: env.errorMessage()}
	}
	if err != nil {
		return "", err
	}

	var job ExportStatus
	if env.hasResult() {
		err = json.Unmarshal(env.Result, &job)
		if err != nil {
			return "", &TransportError{
				Op:  report_client_request_export,
				URL: exportsPath,
				Err: fmt.Errorf("decode export job: %w", err),
			}
		}
	}
	if job.ID == "" {
		err := &NotFoundError{SurveyID: req.SurveyID, Message: "no export job id was returned"}
		c.tel.ReportWarning(report_client_request_export, err)
		return "", err
	}
	return job.ID, nil
}

// JobStatus fetches the current status of an export job once.
func (c *Client) JobStatus(ctx context.Context, jobID string) (ExportStatus, error) {
	path := exportsPath + "/" + url.PathEscape(jobID)
	env, _, err := c.send(ctx, report_client_export_status, http.MethodGet, path, nil)
	if err != nil {
		return ExportStatus{}, err
	}
	var status ExportStatus
	err = json.Unmarshal(env.Result, &status)
	if err != nil {
		return ExportStatus{}, &TransportError{
			Op:  report_client_export_status,
			URL: path,
			Err: fmt.Errorf("decode export status: %w", err),
		}
	}
	if status.Status == "" {
		err := &TransportError{
			Op:  report_client_export_status,
			URL: path,
			Err: fmt.Errorf("export status response has no status"),
		}
		c.tel.ReportBroken(report_client_export_status, err)
		return ExportStatus{}, err
	}
	return status, nil
}

// WaitForExport polls an export job until it completes, returning the
// download url of the finished file. The first poll happens immediately,
// every later poll is preceded by a sleep of policy.Interval.
func (c *Client) WaitForExport(ctx context.Context, surveyID, jobID string, policy PollPolicy) (string, error) {
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollInterval
	}
	start := c.clock.Now()

	for attempt := 1; ; attempt++ {
		status, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch status.Status {
		case ExportComplete:
			return status.File, nil
		case ExportFailed, ExportCancelled:
			err := &ExportFailedError{SurveyID: surveyID, JobID: jobID, Status: status.Status}
			c.tel.ReportBroken(report_client_export_status, err)
			return "", err
		}

		c.tel.ReportDebug(report_client_export_status, surveyID, jobID, status.Status, status.PercentComplete)

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return "", c.timedOut(surveyID, jobID, status.Status)
		}
		if policy.MaxWait > 0 && c.clock.Now().Sub(start)+policy.Interval > policy.MaxWait {
			return "", c.timedOut(surveyID, jobID, status.Status)
		}

		err = c.clock.Sleep(ctx, policy.Interval)
		if err != nil {
			return "", err
		}
	}
}

func (c *Client) timedOut(surveyID, jobID, status string) error {
	err := &ExportFailedError{
		SurveyID: surveyID,
		JobID:    jobID,
		Status:   status,
		TimedOut: true,
	}
	c.tel.ReportBroken(report_client_export_status, err)
	return err
}

// DownloadExport fetches the zip archive of a finished export.
func (c *Client) DownloadExport(ctx context.Context, fileURL string) ([]byte, error) {
	if fileURL == "" {
		return nil, &MalformedExportError{Reason: "completed export has no file url"}
	}
	res, err := c.http.R().
		SetContext(ctx).
		Get(fileURL)
	if err != nil {
		err = &TransportError{Op: report_client_download_export, URL: fileURL, Err: err}
		c.tel.ReportBroken(report_client_download_export, err)
		return nil, err
	}
	if res.IsError() {
		err := &TransportError{
			Op:         report_client_download_export,
			URL:        fileURL,
			StatusCode: res.StatusCode(),
		}
		c.tel.ReportBroken(report_client_download_export, err)
		return nil, err
	}
	c.tel.ReportCount(report_client_download_export, int64(len(res.Body())))
	return res.Body(), nil
}

// RequestExport runs a complete export: it starts the job, waits for it
// using req.Poll, downloads the archive and returns the single CSV file
// inside of it.
func (c *Client) RequestExport(ctx context.Context, req ExportRequest) ([]byte, error) {
	jobID, err := c.StartExport(ctx, req)
	if err != nil {
		return nil, err
	}
	fileURL, err := c.WaitForExport(ctx, req.SurveyID, jobID, req.Poll)
	if err != nil {
		return nil, err
	}
	archive, err := c.DownloadExport(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	return ExtractSingleCSV(archive)
}
