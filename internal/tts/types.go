// Package tts relays synthesis jobs to the voice generation service and
// reassembles the streamed result into one audio buffer.
package tts

import (
	"context"
	"io"
	"time"
)

// RecordSeparator delimits JSON records in the generation response stream
const RecordSeparator byte = 0x1E

// SynthesisRequest is the body posted to the generation endpoint
type SynthesisRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Path     string `json:"path"` // reference recording on the generation host
}

// warmupRequest asks the generation service to spin up without producing audio
type warmupRequest struct {
	Noop bool `json:"noop"`
}

// StreamMessage is one decoded record of the generation stream
type StreamMessage struct {
	CallID string
}

// State is the lifecycle of one generation request
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateStreaming
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Observer receives progress for one generation request. Calls happen on the
// request goroutine in order; implementations must not block for long.
type Observer interface {
	StateChanged(id string, state State, err error)
	SegmentResolved(id string, seg SegmentEvent)
}

// SegmentEvent describes one resolved segment
type SegmentEvent struct {
	Index   int // arrival order, zero based
	CallID  string
	Size    int
	Latency time.Duration
}

// Submitter posts synthesis jobs to the generation service
type Submitter interface {
	// Submit returns the open response stream. The caller must close it.
	Submit(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error)
	// Warmup fires a no-op request and does not read a stream
	Warmup(ctx context.Context) error
}

// SegmentResolver fetches the audio for one call id
type SegmentResolver interface {
	Resolve(ctx context.Context, callID string) ([]byte, error)
}

// Result is the reassembled audio of a completed request
type Result struct {
	Audio    []byte
	Segments int
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, State, error) {}
func (nopObserver) SegmentResolved(string, SegmentEvent) {}
