// Package translate rewrites transcribed text into a target language with a
// chat completion model.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/resilience"
)

const defaultModel = "gpt-3.5-turbo"

// Config configures the translator
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Breaker    *resilience.CircuitBreaker
	Retry      *resilience.RetryConfig
}

// Translator translates text through the OpenAI chat completions API
type Translator struct {
	client  openai.Client
	model   string
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
}

// New creates a translator
func New(cfg Config) *Translator {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	retry := cfg.Retry
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Translator{
		client:  openai.NewClient(opts...),
		model:   model,
		breaker: cfg.Breaker,
		retry:   retry,
	}
}

// Model returns the chat model in use
func (t *Translator) Model() string {
	return t.model
}

// Translate returns text rendered in language
func (t *Translator) Translate(ctx context.Context, text, language string) (string, error) {
	logger := observability.FromContext(ctx)

	text = strings.TrimSpace(text)
	language = strings.TrimSpace(language)
	if text == "" {
		return "", fmt.Errorf("%w: transcription is required", errorsx.ErrInvalidRequest)
	}
	if language == "" {
		return "", fmt.Errorf("%w: language is required", errorsx.ErrInvalidRequest)
	}

	start := time.Now()
	var out string
	call := func() error {
		var err error
		out, err = t.complete(ctx, text, language)
		return err
	}

	err := resilience.Retry(ctx, func() error {
		if t.breaker == nil {
			return call()
		}
		return t.breaker.Call(call)
	}, t.retry, resilience.IsRetryableNetworkError)

	observability.RecordTranslationRequest(err == nil)
	if err != nil {
		return "", errorsx.Wrap(errorsx.FromContext(err), errorsx.ReasonTranslation)
	}

	logger.Info().
		Str("language", language).
		Str("model", t.model).
		Int("input_length", len(text)).
		Int("output_length", len(out)).
		Dur("latency", time.Since(start)).
		Msg("Translation completed")
	return out, nil
}

func (t *Translator) complete(ctx context.Context, text, language string) (string, error) {
	res, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(language)),
			openai.UserMessage(UserPrompt(text, language)),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500) {
			return "", resilience.NewRetryableError(err)
		}
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", errors.New("translation response has no choices")
	}
	return strings.TrimSpace(res.Choices[0].Message.Content), nil
}

// SystemPrompt pins the model to translation only
func SystemPrompt(language string) string {
	return fmt.Sprintf("Only translate the user's message to %s sentences", language)
}

// UserPrompt wraps the text to translate
func UserPrompt(text, language string) string {
	return fmt.Sprintf("Translate this to %s: %s", language, text)
}
