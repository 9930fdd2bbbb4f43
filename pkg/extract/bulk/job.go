// Package bulk runs streams through Shopify bulk operations: a GraphQL query
// is submitted once per date window, polled until it settles, and its JSONL
// result is reassembled into records.
package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/logger"
)

// Status is the server-side state of a bulk operation.
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCanceling    Status = "CANCELING"
	StatusCanceled     Status = "CANCELED"
	StatusExpired      Status = "EXPIRED"
	StatusAccessDenied Status = "ACCESS_DENIED"
	// StatusTimedOut is local: the poll deadline passed before the job settled.
	StatusTimedOut Status = "TIMED_OUT"
)

// Failed reports whether s is a terminal state without a usable result.
func (s Status) Failed() bool {
	switch s {
	case StatusFailed, StatusCanceled, StatusExpired, StatusAccessDenied:
		return true
	}
	return false
}

// Job is one bulk operation.
type Job struct {
	ID             string
	Status         Status
	ErrorCode      string
	ObjectCount    int64
	URL            string
	PartialDataURL string
}

const submitMutation = `mutation {
  bulkOperationRunQuery(
    query: """
%s
"""
  ) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

const pollQuery = `query {
  node(id: "%s") {
    ... on BulkOperation { id status errorCode objectCount url partialDataUrl }
  }
}`

// errConcurrentJob marks a submission rejected because another bulk
// operation of the app is still running.
var errConcurrentJob = errors.New(errors.ErrorTypeBulkJobFailed, "another bulk operation is in progress").
	WithDetail("error_code", "CONCURRENT_JOB")

// submit starts a bulk operation for query. A rejection because another
// operation is running is retried up to cfg.SubmitRetries times.
func (e *Engine) submit(ctx context.Context, client extract.Client, query string) (*Job, error) {
	log := logger.FromContext(ctx, e.logger)
	delay := e.cfg.PollInterval
	for attempt := 0; ; attempt++ {
		job, err := e.submitOnce(ctx, client, query)
		if !errors.Is(err, errConcurrentJob) {
			return job, err
		}
		if attempt >= e.cfg.SubmitRetries {
			return nil, errors.Wrap(err, errors.ErrorTypeBulkJobFailed, "bulk operation submit retries exhausted").
				WithDetail("error_code", "CONCURRENT_JOB").
				WithDetail("attempts", attempt+1)
		}
		log.Info("bulk operation already running, waiting to resubmit",
			zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = e.nextInterval(delay)
	}
}

func (e *Engine) submitOnce(ctx context.Context, client extract.Client, query string) (*Job, error) {
	resp, err := client.GraphQL(ctx, fmt.Sprintf(submitMutation, query))
	if err != nil {
		return nil, err
	}
	result := resp.JSON().Get("data.bulkOperationRunQuery")

	if userErrors := result.Get("userErrors").Array(); len(userErrors) > 0 {
		messages := make([]string, 0, len(userErrors))
		for _, ue := range userErrors {
			msg := ue.Get("message").String()
			if strings.Contains(strings.ToLower(msg), "already in progress") {
				return nil, errConcurrentJob
			}
			messages = append(messages, msg)
		}
		return nil, errors.Newf(errors.ErrorTypeQuery, "bulk query rejected: %s", strings.Join(messages, "; "))
	}

	op := result.Get("bulkOperation")
	if !op.Exists() || op.Type == gjson.Null || op.Get("id").String() == "" {
		return nil, errors.New(errors.ErrorTypeQuery, "bulk query submit returned no operation")
	}
	return &Job{ID: op.Get("id").String(), Status: Status(op.Get("status").String())}, nil
}

// check fetches the current state of a job.
func (e *Engine) check(ctx context.Context, client extract.Client, id string) (*Job, error) {
	resp, err := client.GraphQL(ctx, fmt.Sprintf(pollQuery, id))
	if err != nil {
		return nil, err
	}
	node := resp.JSON().Get("data.node")
	if !node.Exists() || node.Type == gjson.Null {
		return nil, errors.Newf(errors.ErrorTypeQuery, "bulk operation %s not found", id)
	}
	return &Job{
		ID:             id,
		Status:         Status(node.Get("status").String()),
		ErrorCode:      node.Get("errorCode").String(),
		ObjectCount:    node.Get("objectCount").Int(),
		URL:            node.Get("url").String(),
		PartialDataURL: node.Get("partialDataUrl").String(),
	}, nil
}

// poll waits until the job settles. The interval doubles up to
// cfg.MaxPollInterval; cfg.PollTimeout bounds the total wait.
func (e *Engine) poll(ctx context.Context, client extract.Client, job *Job, w Window) (*Job, error) {
	log := logger.FromContext(ctx, e.logger)
	deadline := e.now().Add(e.cfg.PollTimeout)
	interval := e.cfg.PollInterval

	for {
		current, err := e.check(ctx, client, job.ID)
		if err != nil {
			return job, err
		}
		job = current
		log.Debug("bulk operation status", zap.String("status", string(job.Status)), zap.Int64("objects", job.ObjectCount))

		switch {
		case job.Status == StatusCompleted:
			return job, nil
		case job.Status.Failed():
			return job, errors.Newf(errors.ErrorTypeBulkJobFailed, "bulk operation %s finished %s", job.ID, job.Status).
				WithDetail("job_id", job.ID).
				WithDetail("status", string(job.Status)).
				WithDetail("error_code", job.ErrorCode)
		}

		if !e.now().Before(deadline) {
			return job, errors.Newf(errors.ErrorTypeBulkJobTimedOut, "bulk operation %s still %s after %s", job.ID, job.Status, e.cfg.PollTimeout).
				WithDetail("job_id", job.ID).
				WithDetail("window_start", w.Start).
				WithDetail("window_end", w.End)
		}
		if remaining := deadline.Sub(e.now()); interval > remaining {
			interval = remaining
		}
		if err := e.sleep(ctx, interval); err != nil {
			return job, err
		}
		interval = e.nextInterval(interval)
	}
}

func (e *Engine) nextInterval(d time.Duration) time.Duration {
	d *= 2
	if d > e.cfg.MaxPollInterval {
		d = e.cfg.MaxPollInterval
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
