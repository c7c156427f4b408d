package examapi

import (
	"errors"
	"fmt"
)

// Terminal upstream outcomes. These are never retried.
var (
	// ErrAlreadySubmitted means a submission already exists for this exam and
	// student. Callers treat it exactly like hasSubmitted=true, not as a
	// transient failure.
	ErrAlreadySubmitted = errors.New("a submission already exists for this exam")

	// ErrExamNotFound means the upstream does not know the exam.
	ErrExamNotFound = errors.New("exam not found")

	// ErrUnauthorized means the bearer token was rejected upstream.
	ErrUnauthorized = errors.New("upstream rejected the bearer token")
)

// SubmissionError is a terminal validation rejection from the upstream API.
// The attempt could not be recorded and retrying will not change that.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected by upstream (status %d): %s", e.StatusCode, e.Message)
}

// TransientError wraps a failure worth retrying: the request never reached the
// server, or the server answered 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err is a non-retryable upstream outcome.
func IsTerminal(err error) bool {
	var te *TransientError
	return err != nil && !errors.As(err, &te)
}
