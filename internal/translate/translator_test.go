package translate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/resilience"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": " Hola, ¿cómo estás? ", "refusal": null}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestTranslate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completion)
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client(), Retry: fastRetry()})
	out, err := tr.Translate(context.Background(), "Hello, how are you?", "Spanish")
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿cómo estás?", out)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Only translate the user's message to Spanish sentences", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Translate this to Spanish: Hello, how are you?", got.Messages[1].Content)
}

func TestTranslate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		io.WriteString(w, completion)
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client(), Retry: fastRetry()})
	_, err := tr.Translate(context.Background(), "Hello", "Spanish")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTranslate_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "sk-bad", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client(), Retry: fastRetry()})
	_, err := tr.Translate(context.Background(), "Hello", "Spanish")
	require.Error(t, err)
	assert.Equal(t, errorsx.ReasonTranslation, errorsx.Reason(err))
	assert.Equal(t, http.StatusBadGateway, errorsx.HTTPStatus(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTranslate_InvalidInput(t *testing.T) {
	tr := New(Config{APIKey: "sk-test"})

	_, err := tr.Translate(context.Background(), "  ", "Spanish")
	assert.ErrorIs(t, err, errorsx.ErrInvalidRequest)

	_, err = tr.Translate(context.Background(), "Hello", "")
	assert.ErrorIs(t, err, errorsx.ErrInvalidRequest)
}

func TestTranslate_DefaultModel(t *testing.T) {
	assert.Equal(t, "gpt-3.5-turbo", New(Config{}).Model())
	assert.Equal(t, "gpt-4o-mini", New(Config{Model: "gpt-4o-mini"}).Model())
}
