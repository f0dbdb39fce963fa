package constants

// JobStatus is where a job currently sits in the broker.
type JobStatus string

// Stable values (reported by cvctl stats and stored with failed jobs).
const (
	JobStatusWaiting   JobStatus = "waiting"   // queued, not yet received
	JobStatusActive    JobStatus = "active"    // received by a consumer
	JobStatusDelayed   JobStatus = "delayed"   // waiting for a retry backoff to elapse
	JobStatusCompleted JobStatus = "completed" // handler returned ok
	JobStatusFailed    JobStatus = "failed"    // dead-lettered
)

// ResultStatus is the status field of a job result.
type ResultStatus string

const (
	ResultOK    ResultStatus = "ok"
	ResultError ResultStatus = "error"
)
