// Package clone serves one voice-clone request end to end: generate the
// audio through the streamed relay, store it under a per-request key and
// hand back a signed URL.
package clone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/jobs"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/storage"
	"github.com/lexiqai/voice-translator/internal/tts"
)

// Request is the caller's clone request
type Request struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Noop     bool   `json:"noop,omitempty"`
}

// Response is a delivered (or warmed) clone request
type Response struct {
	ID        string `json:"id"`
	URL       string `json:"transcriptURL,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
	Key       string `json:"-"`
	Segments  int    `json:"segments,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Warmup    bool   `json:"-"`
}

// Generator produces audio for a synthesis request
type Generator interface {
	Warmup(ctx context.Context) error
	Generate(ctx context.Context, id string, req tts.SynthesisRequest, obs tts.Observer) (*tts.Result, error)
}

// Config wires a Service
type Config struct {
	Generator  Generator
	Store      storage.Store
	Registry   *jobs.Registry // optional
	KeyPrefix  string
	SourcePath string // reference recording the generation service clones from
}

// Service runs clone requests. It is safe for concurrent use; requests share
// nothing but the registry.
type Service struct {
	gen        Generator
	store      storage.Store
	registry   *jobs.Registry
	keyPrefix  string
	sourcePath string
}

// NewService creates a clone service
func NewService(cfg Config) *Service {
	return &Service{
		gen:        cfg.Generator,
		store:      cfg.Store,
		registry:   cfg.Registry,
		keyPrefix:  cfg.KeyPrefix,
		sourcePath: cfg.SourcePath,
	}
}

// Clone runs req under the correlation id id (a fresh one when empty).
// A warm-up request never reaches storage and carries no URL. obs, when
// non-nil, sees every generation state change and resolved segment.
func (s *Service) Clone(ctx context.Context, id string, req Request, obs tts.Observer) (*Response, error) {
	if id == "" {
		id = observability.NewCorrelationID()
	}
	logger := observability.WithCorrelationID(id)
	ctx = observability.IntoContext(ctx, logger)

	if !req.Noop && strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", errorsx.ErrInvalidRequest)
	}

	if s.registry != nil {
		if err := s.registry.Start(id, req.Language, req.Noop); err != nil {
			return nil, fmt.Errorf("%w: %v", errorsx.ErrInvalidRequest, err)
		}
	}

	metrics := observability.NewJobMetrics(id)
	if req.Noop {
		return s.warmup(ctx, id, metrics)
	}

	metrics.RecordJobStart()
	resp, err := s.generate(ctx, id, req, obs, metrics)
	metrics.RecordJobEnd(err == nil)
	if err != nil {
		s.fail(ctx, id, err)
		return nil, err
	}
	return resp, nil
}

func (s *Service) warmup(ctx context.Context, id string, metrics *observability.JobMetrics) (*Response, error) {
	logger := observability.FromContext(ctx)
	metrics.RecordWarmup()

	if err := s.gen.Warmup(ctx); err != nil {
		s.fail(ctx, id, err)
		return nil, err
	}
	if s.registry != nil {
		s.registry.Warmed(id)
	}
	logger.Info().Msg("Generation service warmed up")
	return &Response{ID: id, Warmup: true}, nil
}

func (s *Service) generate(ctx context.Context, id string, req Request, obs tts.Observer, metrics *observability.JobMetrics) (*Response, error) {
	logger := observability.FromContext(ctx)
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "clone.request", id,
		attribute.String("language", req.Language),
	)

	observers := observerSet{metricsObserver{metrics}}
	if s.registry != nil {
		observers = append(observers, s.registry)
	}
	if obs != nil {
		observers = append(observers, obs)
	}

	metrics.RecordGenerationStart()
	result, err := s.gen.Generate(ctx, id, tts.SynthesisRequest{
		Text:     req.Text,
		Language: req.Language,
		Path:     s.sourcePath,
	}, observers)
	metrics.RecordGenerationEnd(err == nil)
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	if result == nil || len(result.Audio) == 0 {
		err = &errorsx.SubmissionError{Err: errors.New("generation produced no audio")}
		observability.EndSpan(span, err)
		return nil, err
	}

	// The id is caller supplied and may repeat once a job finishes
	key := storage.ObjectKey(s.keyPrefix, id+"-"+uuid.NewString())
	metrics.RecordStorageStart()
	signed, err := s.store.Put(ctx, key, result.Audio)
	metrics.RecordStorageEnd(err == nil)
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	observability.EndSpan(span, nil)

	if s.registry != nil {
		s.registry.Complete(id, key, signed.URL, time.Duration(signed.ExpiresInSeconds)*time.Second)
	}

	logger.Info().
		Str("key", key).
		Int("segments", result.Segments).
		Int("bytes", len(result.Audio)).
		Dur("duration", time.Since(start)).
		Msg("Clone request delivered")

	return &Response{
		ID:        id,
		URL:       signed.URL,
		ExpiresIn: signed.ExpiresInSeconds,
		Key:       key,
		Segments:  result.Segments,
		Bytes:     len(result.Audio),
	}, nil
}

func (s *Service) fail(ctx context.Context, id string, err error) {
	reason := errorsx.Reason(err)
	if s.registry != nil {
		s.registry.Fail(id, err)
	}
	observability.RecordError(string(reason), "clone")

	event := observability.FromContext(ctx).Error()
	if reason == errorsx.ReasonCanceled {
		event = observability.FromContext(ctx).Warn()
	}
	event.Err(err).Str("reason", string(reason)).Msg("Clone request failed")
}

// observerSet fans generation events out to several observers
type observerSet []tts.Observer

func (o observerSet) StateChanged(id string, state tts.State, err error) {
	for _, obs := range o {
		obs.StateChanged(id, state, err)
	}
}

func (o observerSet) SegmentResolved(id string, seg tts.SegmentEvent) {
	for _, obs := range o {
		obs.SegmentResolved(id, seg)
	}
}

type metricsObserver struct {
	metrics *observability.JobMetrics
}

func (metricsObserver) StateChanged(string, tts.State, error) {}

func (m metricsObserver) SegmentResolved(_ string, seg tts.SegmentEvent) {
	m.metrics.RecordSegment(seg.Size, seg.Latency)
}
