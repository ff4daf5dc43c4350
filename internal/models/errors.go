package models

import (
	"fmt"
	"time"
)

// InsufficientContextError means synthesis produced too few topics to run
// an interview. The session cannot start.
type InsufficientContextError struct {
	Found    int
	Required int
}

func (e *InsufficientContextError) Error() string {
	return fmt.Sprintf("insufficient context: %d topics found, %d required", e.Found, e.Required)
}

// Document parse failure reasons.
const (
	ParseEmpty           = "empty"
	ParseTooLarge        = "too-large"
	ParseInvalidEncoding = "invalid-encoding"
	ParseMalformed       = "malformed"
)

// DocumentParseError reports an unusable input document.
type DocumentParseError struct {
	Document string
	Reason   string
	Err      error
}

func (e *DocumentParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing %s document (%s): %v", e.Document, e.Reason, e.Err)
	}
	return fmt.Sprintf("parsing %s document: %s", e.Document, e.Reason)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// GenerationTimeoutError is recorded when question generation failed after
// its retry and a fallback question was used.
type GenerationTimeoutError struct {
	TopicID  string
	Attempts int
	Err      error
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("question generation for topic %q failed after %d attempts: %v", e.TopicID, e.Attempts, e.Err)
}

func (e *GenerationTimeoutError) Unwrap() error { return e.Err }

// EvaluationTimeoutError is recorded when scoring failed after its retry.
type EvaluationTimeoutError struct {
	TurnIndex int
	Attempts  int
	Err       error
}

func (e *EvaluationTimeoutError) Error() string {
	return fmt.Sprintf("evaluation of turn %d failed after %d attempts: %v", e.TurnIndex, e.Attempts, e.Err)
}

func (e *EvaluationTimeoutError) Unwrap() error { return e.Err }

// RecognitionGapError describes a stretch with no recognized fragments. It
// is recorded on the turn and never aborts the session.
type RecognitionGapError struct {
	TurnIndex int
	Silence   time.Duration
}

func (e *RecognitionGapError) Error() string {
	return fmt.Sprintf("no speech recognized in turn %d for %s", e.TurnIndex, e.Silence)
}

// UnrecoverableUpstreamError ends the session early with a partial report.
type UnrecoverableUpstreamError struct {
	Capability string
	Failures   int
	Err        error
}

func (e *UnrecoverableUpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable after %d consecutive failures: %v", e.Capability, e.Failures, e.Err)
}

func (e *UnrecoverableUpstreamError) Unwrap() error { return e.Err }
