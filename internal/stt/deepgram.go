package stt

import (
	"bytes"
	"context"
	"errors"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voice-translator/internal/resilience"
)

// DeepgramTranscriber transcribes whole recordings with Deepgram's
// pre-recorded REST API
type DeepgramTranscriber struct {
	dg       *api.Client
	model    string
	language string
}

// NewDeepgramTranscriber creates a Deepgram transcriber
func NewDeepgramTranscriber(apiKey, model, language string) *DeepgramTranscriber {
	if model == "" {
		model = "nova-2"
	}
	if language == "" {
		language = "en"
	}

	c := client.NewREST(apiKey, &interfaces.ClientOptions{})
	log.Debug().Str("model", model).Str("language", language).Msg("Deepgram transcriber created")

	return &DeepgramTranscriber{
		dg:       api.New(c),
		model:    model,
		language: language,
	}
}

// Name identifies the provider in logs and metrics
func (d *DeepgramTranscriber) Name() string {
	return "deepgram"
}

// Transcribe sends the recording and returns the best alternative
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, rec Recording) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
	}

	res, err := d.dg.FromStream(ctx, bytes.NewReader(rec.Data), options)
	if err != nil {
		return "", classifyDeepgramError(err)
	}
	return transcriptFrom(res)
}

func transcriptFrom(res *restinterfaces.PreRecordedResponse) (string, error) {
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", errors.New("deepgram response has no channels")
	}
	channel := res.Results.Channels[0]
	if len(channel.Alternatives) == 0 {
		return "", errors.New("deepgram response has no alternatives")
	}
	return strings.TrimSpace(channel.Alternatives[0].Transcript), nil
}

// classifyDeepgramError marks rate limits and server errors as retryable.
// The SDK reports HTTP failures as formatted errors carrying the status.
func classifyDeepgramError(err error) error {
	msg := err.Error()
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return resilience.NewRetryableError(err)
		}
	}
	return err
}
