package bq

import (
	"context"

	"cloud.google.com/go/bigquery"
	"golang.org/x/xerrors"

	"github.com/okuraya/dataglue"
	"github.com/okuraya/dataglue/jobs"
)

// job adapts a BigQuery job handle to the poller's Job interface.
type job struct {
	bq    *bigquery.Job
	state jobs.State
	err   error
}

func newJob(j *bigquery.Job) *job {
	return &job{bq: j, state: jobs.Submitted}
}

func (j *job) ID() string { return j.bq.ID() }

func (j *job) Reload(ctx context.Context) error {
	status, err := j.bq.Status(ctx)
	if err != nil {
		return xerrors.Errorf("failed to reload job %s: %w", j.bq.ID(), err)
	}
	j.state, j.err = stateFromParts(j.bq.ID(), status.State, status.Err(), status.Errors)
	return nil
}

func (j *job) State() jobs.State { return j.state }

func (j *job) Err() error { return j.err }

// stateFromParts maps a job status snapshot onto the poller's states.
// A job that ran to completion with an error payload counts as Failed.
func stateFromParts(id string, s bigquery.State, err error, details []*bigquery.Error) (jobs.State, error) {
	switch s {
	case bigquery.Pending:
		return jobs.Pending, nil
	case bigquery.Running:
		return jobs.Running, nil
	}
	if err == nil {
		return jobs.Done, nil
	}
	return jobs.Failed, jobError(id, err, details)
}

// jobError shapes a remote failure into a JobError carrying the first
// error's reason and message, the payload shown in the console.
func jobError(id string, err error, details []*bigquery.Error) *dataglue.JobError {
	reason, message := "", err.Error()
	if len(details) > 0 {
		reason, message = details[0].Reason, details[0].Message
	} else if e, ok := err.(*bigquery.Error); ok {
		reason, message = e.Reason, e.Message
	}
	return &dataglue.JobError{JobID: id, Reason: reason, Message: message}
}
