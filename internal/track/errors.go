package track

import (
	"fmt"
	"time"
)

// Every error below resolves to Status=Failed plus ErrorMessage on the job;
// callers only ever display the message and offer retry.

// SubmissionError means the initial request failed and no job was queued
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s", e.Reason)
}

// StallTimeout means no accepted event arrived within the silence threshold
type StallTimeout struct {
	Silence time.Duration
}

func (e *StallTimeout) Error() string {
	return fmt.Sprintf("conversion stalled: no progress for %s", e.Silence.Round(time.Second))
}

// EmptyResultError means a completion event yielded zero usable results
type EmptyResultError struct{}

func (e *EmptyResultError) Error() string {
	return "conversion finished with an empty result"
}

// BackendFailure carries a server-reported failure message verbatim
type BackendFailure struct {
	Message string
}

func (e *BackendFailure) Error() string {
	if e.Message == "" {
		return "conversion failed"
	}
	return e.Message
}
