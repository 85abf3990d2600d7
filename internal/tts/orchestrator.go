package tts

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexiqai/voice-translator/internal/audio"
	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/resilience"
)

var (
	errEmptyStream     = errors.New("generation stream ended without any segments")
	errDuplicateCallID = errors.New("call id repeated within one stream")
)

// Orchestrator drives one generation request at a time per call:
// submit, decode the stream, resolve each call id in arrival order and
// fold the segments into one buffer. Each Generate call is independent and
// Orchestrator itself is safe for concurrent use.
type Orchestrator struct {
	submitter Submitter
	resolver  SegmentResolver
	breaker   *resilience.CircuitBreaker
	timeout   time.Duration
}

// NewOrchestrator creates an orchestrator. breaker may be nil; a timeout of
// zero leaves the deadline to the caller's context.
func NewOrchestrator(submitter Submitter, resolver SegmentResolver, breaker *resilience.CircuitBreaker, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		submitter: submitter,
		resolver:  resolver,
		breaker:   breaker,
		timeout:   timeout,
	}
}

// Warmup asks the generation service to spin up. No stream is consumed and
// nothing is produced.
func (o *Orchestrator) Warmup(ctx context.Context) error {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "generation.warmup", "")
	err := o.guard(func() error {
		return o.submitter.Warmup(ctx)
	})
	err = classify(ctx, err)
	observability.EndSpan(span, err)
	return err
}

// Generate runs one synthesis request to completion. On any failure the
// partial audio is discarded and a typed error is returned; it never returns
// an empty result without an error.
func (o *Orchestrator) Generate(ctx context.Context, id string, req SynthesisRequest, obs Observer) (*Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "generation.generate", id,
		attribute.String("language", req.Language),
		attribute.Int("text_length", len(req.Text)),
	)

	logger := observability.FromContext(ctx).With().Str("component", "generation").Logger()
	r := &run{id: id, obs: obs, logger: logger}

	var result *Result
	err := o.guard(func() error {
		var err error
		result, err = o.run(ctx, r, req)
		return err
	})
	err = classify(ctx, err)

	if err != nil {
		r.transition(StateFailed, err)
		logger.Error().
			Err(err).
			Str("reason", string(errorsx.Reason(err))).
			Int("segments", r.segments).
			Msg("Generation failed")
		observability.EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("segments", result.Segments),
		attribute.Int("bytes", len(result.Audio)),
	)
	r.transition(StateComplete, nil)
	observability.EndSpan(span, nil)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, r *run, req SynthesisRequest) (*Result, error) {
	r.transition(StateSubmitting, nil)

	body, err := o.submitter.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	r.transition(StateStreaming, nil)

	acc := audio.NewAccumulator(0)
	seen := make(map[string]struct{})
	dec := NewDecoder(body)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var malformed *errorsx.MalformedSegmentError
			if errors.As(err, &malformed) {
				return nil, err
			}
			return nil, &errorsx.SubmissionError{Err: err}
		}

		index := dec.Index() - 1
		if _, dup := seen[msg.CallID]; dup {
			return nil, &errorsx.MalformedSegmentError{
				Index:   index,
				Segment: msg.CallID,
				Err:     errDuplicateCallID,
			}
		}
		seen[msg.CallID] = struct{}{}

		start := time.Now()
		segment, err := o.resolveSegment(ctx, r.id, msg.CallID)
		if err != nil {
			return nil, err
		}
		acc.Append(segment)
		r.segments++

		ev := SegmentEvent{
			Index:   index,
			CallID:  msg.CallID,
			Size:    len(segment),
			Latency: time.Since(start),
		}
		r.logger.Debug().
			Int("index", ev.Index).
			Str("call_id", ev.CallID).
			Int("size", ev.Size).
			Int("total_bytes", acc.Len()).
			Dur("latency", ev.Latency).
			Msg("Segment resolved")
		r.obs.SegmentResolved(r.id, ev)
	}

	if acc.Segments() == 0 {
		return nil, &errorsx.SubmissionError{Err: errEmptyStream}
	}

	logAudioInfo(r.logger, acc.Bytes(), acc.Segments())
	return &Result{Audio: acc.Bytes(), Segments: acc.Segments()}, nil
}

func (o *Orchestrator) resolveSegment(ctx context.Context, id, callID string) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "generation.resolve", id, attribute.String("call_id", callID))
	data, err := o.resolver.Resolve(ctx, callID)
	if err == nil {
		span.SetAttributes(attribute.Int("bytes", len(data)))
	}
	observability.EndSpan(span, err)
	return data, err
}

// guard runs fn through the circuit breaker. Cancellations by the caller and
// malformed records do not count against the generation service.
func (o *Orchestrator) guard(fn func() error) error {
	if o.breaker == nil {
		return fn()
	}
	return o.breaker.CallFiltered(fn, func(err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, errorsx.ErrCanceled) {
			return false
		}
		return !errorsx.HasReason(err, errorsx.ReasonMalformedSegment)
	})
}

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// classify prefers the context's verdict: once the deadline has passed or
// the caller has gone, whatever the transport reported is a symptom of that.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errorsx.FromContext(ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorsx.FromContext(err)
	}
	return err
}

func logAudioInfo(logger zerolog.Logger, data []byte, segments int) {
	event := logger.Info().Int("segments", segments).Int("bytes", len(data))
	if info, err := audio.ParseWAV(data); err == nil {
		event = event.
			Uint32("sample_rate", info.SampleRate).
			Uint16("channels", info.Channels).
			Dur("duration", info.Duration())
	}
	event.Msg("Generation complete")
}

// run tracks the state of one Generate call
type run struct {
	id       string
	obs      Observer
	logger   zerolog.Logger
	state    State
	segments int
}

func (r *run) transition(state State, err error) {
	if r.state == state || r.state.Terminal() {
		return
	}
	r.logger.Debug().
		Str("from", r.state.String()).
		Str("to", state.String()).
		Msg("Generation state changed")
	r.state = state
	r.obs.StateChanged(r.id, state, err)
}
