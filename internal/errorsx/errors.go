// Package errorsx holds the typed failures of the clone relay. Every stage
// returns one of these so the HTTP boundary can map it to a status code
// without string matching.
package errorsx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout is returned when the generation deadline expires.
	ErrTimeout = errors.New("generation deadline exceeded")
	// ErrCanceled is returned when the caller went away mid-request.
	ErrCanceled = errors.New("request canceled")
	// ErrInvalidRequest marks caller input that can never succeed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCircuitOpen is returned when a downstream service is failing fast.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// reasoned is implemented by every typed error in this package.
type reasoned interface {
	Reason() ReasonCode
}

// SubmissionError means the generation endpoint rejected the request.
type SubmissionError struct {
	Status int
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation submission failed with status %d", e.Status)
	}
	return fmt.Sprintf("generation submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error      { return e.Err }
func (e *SubmissionError) Reason() ReasonCode { return ReasonSubmission }

// MalformedSegmentError means the generation stream produced a record that
// could not be parsed.
type MalformedSegmentError struct {
	Index   int
	Segment string
	Err     error
}

func (e *MalformedSegmentError) Error() string {
	return fmt.Sprintf("malformed stream segment %d: %v", e.Index, e.Err)
}

func (e *MalformedSegmentError) Unwrap() error      { return e.Err }
func (e *MalformedSegmentError) Reason() ReasonCode { return ReasonMalformedSegment }

// SegmentFetchError means the audio for one call id could not be retrieved.
type SegmentFetchError struct {
	CallID string
	Status int
	Err    error
}

func (e *SegmentFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("segment %s fetch failed with status %d", e.CallID, e.Status)
	}
	return fmt.Sprintf("segment %s fetch failed: %v", e.CallID, e.Err)
}

func (e *SegmentFetchError) Unwrap() error      { return e.Err }
func (e *SegmentFetchError) Reason() ReasonCode { return ReasonSegmentFetch }

// StorageError means the upload or the signed URL generation failed.
type StorageError struct {
	Op  string // "upload" or "presign"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s of %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error      { return e.Err }
func (e *StorageError) Reason() ReasonCode { return ReasonStorage }

// FromContext converts a context error into ErrTimeout or ErrCanceled.
// Any other error is returned unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCanceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	return err
}

// Reason extracts a reason code from an error, if present.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var r reasoned
	if errors.As(err, &r) {
		return r.Reason()
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrCanceled):
		return ReasonCanceled
	case errors.Is(err, ErrInvalidRequest):
		return ReasonInvalidRequest
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// HTTPStatus maps an error to the status the caller-facing handlers return.
// It never returns a 2xx code.
func HTTPStatus(err error) int {
	switch Reason(err) {
	case ReasonInvalidRequest:
		return http.StatusBadRequest
	case ReasonSubmission, ReasonMalformedSegment, ReasonSegmentFetch,
		ReasonTranscription, ReasonTranslation:
		return http.StatusBadGateway
	case ReasonTimeout:
		return http.StatusGatewayTimeout
	case ReasonCircuitOpen:
		return http.StatusServiceUnavailable
	case ReasonCanceled:
		// nginx convention; the client is gone and never sees it
		return 499
	}
	return http.StatusInternalServerError
}
