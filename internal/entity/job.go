package entity

import (
	"strconv"
	"time"

	"github.com/joseph-ayodele/cv-parser/constants"
)

// CVParseJob is a job payload that passed validation. Only ParseJob builds one.
type CVParseJob struct {
	CandidateID int64  `json:"candidate_id"`
	StoragePath string `json:"storage_path"`
}

// JobResult is reported back to the broker as the job's outcome.
type JobResult struct {
	Status      constants.ResultStatus `json:"status"`
	CandidateID string                 `json:"candidate_id"`
}

// OKResult is the result of a successfully processed job.
func OKResult(candidateID int64) JobResult {
	return JobResult{Status: constants.ResultOK, CandidateID: strconv.FormatInt(candidateID, 10)}
}

// ErrorResult is the result of a failed job. The candidate ID is empty when
// the payload never validated.
func ErrorResult(candidateID int64) JobResult {
	res := JobResult{Status: constants.ResultError}
	if candidateID > 0 {
		res.CandidateID = strconv.FormatInt(candidateID, 10)
	}
	return res
}

// FailedJob is a dead-lettered job as shown to operators.
type FailedJob struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Payload     string    `json:"payload"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	ErrorKind   string    `json:"error_kind"`
	LastError   string    `json:"last_error"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	FailedAt    time.Time `json:"failed_at"`
}
