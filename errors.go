package dataglue

import "fmt"

// IOError reports a local file or stream failure during a transfer.
type IOError struct {
	Op   string // operation that failed, e.g. "open" or "gcs.upload"
	Path string // file path or object URI, empty for anonymous streams
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// QueryError reports SQL or query text that the store rejected.
type QueryError struct {
	Query string
	Err   error
}

// Long queries are cut off in error output; the full text stays in Query.
const queryErrorLimit = 120

func (e *QueryError) Error() string {
	q := e.Query
	if len(q) > queryErrorLimit {
		q = q[:queryErrorLimit] + "..."
	}
	return fmt.Sprintf("query rejected: %v (query: %s)", e.Err, q)
}

func (e *QueryError) Unwrap() error { return e.Err }

// SchemaError reports a column count or name mismatch between source data
// and the destination table.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return "schema mismatch: " + e.Msg
	}
	return fmt.Sprintf("schema mismatch: %s: %v", e.Msg, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// LoadError reports row data the destination rejected, such as a type
// mismatch or a constraint violation. Line is the 1-based line of the
// offending row within the source when the destination reports it, 0
// otherwise.
type LoadError struct {
	Table string
	Line  int64
	Err   error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load into %s failed at line %d: %v", e.Table, e.Line, e.Err)
	}
	return fmt.Sprintf("load into %s failed: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubmissionError reports an async job the remote service rejected at
// submission time.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// JobError reports an async job that reached the failed state. It carries
// the error payload the remote service attached to the job.
type JobError struct {
	JobID   string
	Reason  string
	Message string
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
	}
	return fmt.Sprintf("job %s failed: %s: %s", e.JobID, e.Reason, e.Message)
}

// ConfigError reports contradictory or unusable caller options.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "invalid configuration: " + e.Msg }
