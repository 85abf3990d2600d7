package stt

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lexiqai/voice-translator/internal/resilience"
)

// WhisperTranscriber transcribes through the OpenAI audio API
type WhisperTranscriber struct {
	client openai.Client
	model  string
}

// NewWhisperTranscriber creates an OpenAI transcriber. baseURL may point at
// any OpenAI-compatible endpoint; empty uses the public API. The SDK's own
// retries are disabled so Service owns the retry policy.
func NewWhisperTranscriber(apiKey, baseURL, model string, httpClient *http.Client) *WhisperTranscriber {
	if model == "" {
		model = "whisper-1"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &WhisperTranscriber{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Name identifies the provider in logs and metrics
func (w *WhisperTranscriber) Name() string {
	return "openai"
}

// Transcribe uploads the recording and returns the text
func (w *WhisperTranscriber) Transcribe(ctx context.Context, rec Recording) (string, error) {
	filename := rec.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}

	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(rec.Data), filename, contentType),
		Model: openai.AudioModel(w.model),
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	return res.Text, nil
}

// classifyOpenAIError marks rate limits and server errors as retryable
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return resilience.NewRetryableError(err)
		}
	}
	return err
}
