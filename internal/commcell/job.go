package commcell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrJobNotFound is returned when the server has no job with the given id.
var ErrJobNotFound = errors.New("job not found")

// JobAction is a control action accepted by the job endpoint.
type JobAction string

const (
	JobKill    JobAction = "kill"
	JobSuspend JobAction = "pause"
	JobResume  JobAction = "resume"
)

// JobSummary is the subset of the job summary the modules report.
type JobSummary struct {
	JobID        int64  `json:"jobId"`
	Status       string `json:"status"`
	JobType      string `json:"jobType"`
	PercentDone  int    `json:"percentComplete"`
	PendingCause string `json:"pendingReason"`
}

type jobResponse struct {
	Jobs []struct {
		JobSummary JobSummary `json:"jobSummary"`
	} `json:"jobs"`
}

// finishedStatuses are terminal job states, lower case.
var finishedStatuses = map[string]bool{
	"completed":                         true,
	"completed w/ one or more errors":   true,
	"completed w/ one or more warnings": true,
	"failed":                            true,
	"failed to start":                   true,
	"killed":                            true,
	"committed":                         true,
}

// IsFinished reports whether status is a terminal job state.
func IsFinished(status string) bool {
	return finishedStatuses[strings.ToLower(status)]
}

// Job fetches the summary for jobID.
func (c *Connection) Job(ctx context.Context, jobID int64) (*JobSummary, error) {
	resp, err := c.rest().R().SetContext(ctx).Get(fmt.Sprintf("Job/%d", jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", jobID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get job %d: %s", ErrRequestFailed, jobID, resp.Status())
	}

	var out jobResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("get job %d: malformed response: %w", jobID, err)
	}
	if len(out.Jobs) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
	}
	summary := out.Jobs[0].JobSummary
	if summary.JobID == 0 {
		summary.JobID = jobID
	}
	return &summary, nil
}

// JobControl applies action to jobID.
func (c *Connection) JobControl(ctx context.Context, jobID int64, action JobAction) error {
	resp, err := c.rest().R().SetContext(ctx).Post(fmt.Sprintf("Job/%d/action/%s", jobID, action))
	if err != nil {
		return fmt.Errorf("%s job %d: %w", action, jobID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s job %d: %s", ErrRequestFailed, action, jobID, resp.Status())
	}
	var out struct {
		ErrorCode    int    `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err == nil && out.ErrorCode != 0 {
		return fmt.Errorf("%s job %d: %s (error code %d)", action, jobID, out.ErrorMessage, out.ErrorCode)
	}
	c.cfg.Logger.Debug("job action applied", "job_id", jobID, "action", string(action))
	return nil
}

// WaitForJob polls jobID until done reports true for its status, returning
// the last summary seen. Only ctx bounds the wait.
func (c *Connection) WaitForJob(ctx context.Context, jobID int64, done func(status string) bool) (*JobSummary, error) {
	interval := c.cfg.withDefaults().PollInterval
	for {
		summary, err := c.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if done(summary.Status) {
			return summary, nil
		}
		c.cfg.Logger.Debug("waiting for job", "job_id", jobID, "status", summary.Status)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return summary, ctx.Err()
		case <-timer.C:
		}
	}
}
