// Package stt turns uploaded recordings into text through a hosted
// speech-to-text provider.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/lexiqai/voice-translator/internal/audio"
	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/resilience"
)

// ErrSilentAudio is returned when a WAV upload carries no speech energy
var ErrSilentAudio = errors.New("recording is silent")

// Recording is one uploaded audio file
type Recording struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Transcriber is a speech-to-text provider
type Transcriber interface {
	Transcribe(ctx context.Context, rec Recording) (string, error)
	Name() string
}

// Service guards a provider with the silence gate, retries and a circuit breaker
type Service struct {
	provider         Transcriber
	breaker          *resilience.CircuitBreaker
	retry            *resilience.RetryConfig
	silenceThreshold float64
}

// NewService creates a transcription service. breaker and retry may be nil.
func NewService(provider Transcriber, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, silenceThreshold float64) *Service {
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &Service{
		provider:         provider,
		breaker:          breaker,
		retry:            retry,
		silenceThreshold: silenceThreshold,
	}
}

// Provider returns the provider name
func (s *Service) Provider() string {
	return s.provider.Name()
}

// Transcribe returns the text spoken in rec. Silent WAV recordings are
// rejected before any provider call.
func (s *Service) Transcribe(ctx context.Context, rec Recording) (string, error) {
	logger := observability.FromContext(ctx)

	if len(rec.Data) == 0 {
		return "", errorsx.Wrap(errors.New("recording is empty"), errorsx.ReasonInvalidRequest)
	}

	level := audio.InspectLevel(rec.Data, s.silenceThreshold)
	if level.Checked {
		logger.Debug().Float64("rms", level.RMS).Bool("silent", level.Silent).Msg("Recording level")
	}
	if level.Silent {
		return "", ErrSilentAudio
	}

	start := time.Now()
	var text string
	call := func() error {
		var err error
		text, err = s.provider.Transcribe(ctx, rec)
		return err
	}

	err := resilience.Retry(ctx, func() error {
		if s.breaker == nil {
			return call()
		}
		return s.breaker.Call(call)
	}, s.retry, resilience.IsRetryableNetworkError)

	observability.RecordSTTRequest(s.provider.Name(), err == nil, len(rec.Data))
	if err != nil {
		return "", errorsx.Wrap(errorsx.FromContext(err), errorsx.ReasonTranscription)
	}

	logger.Info().
		Str("provider", s.provider.Name()).
		Int("audio_bytes", len(rec.Data)).
		Int("text_length", len(text)).
		Dur("latency", time.Since(start)).
		Msg("Transcription completed")
	return text, nil
}
