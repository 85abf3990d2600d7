package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

// GenerationClient submits jobs to <baseURL>/generate
type GenerationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGenerationClient creates a client for the generation service at baseURL.
// The http client should not carry its own timeout: the response is a
// long-lived stream bounded by the request context instead.
func NewGenerationClient(baseURL string, httpClient *http.Client) *GenerationClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GenerationClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Submit posts req and returns the streamed response body.
// A non-2xx status or transport failure is a *errorsx.SubmissionError.
func (c *GenerationClient) Submit(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Warmup posts {"noop": true} and discards the response
func (c *GenerationClient) Warmup(ctx context.Context) error {
	resp, err := c.post(ctx, warmupRequest{Noop: true})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

// Ping checks that the generation host answers HTTP at all
func (c *GenerationClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode < 500, nil
}

func (c *GenerationClient) post(ctx context.Context, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, &errorsx.SubmissionError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &errorsx.SubmissionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errorsx.SubmissionError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		log.Debug().
			Int("status", resp.StatusCode).
			Str("body", string(msg)).
			Msg("Generation service rejected request")
		return nil, &errorsx.SubmissionError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("generation service returned status %d", resp.StatusCode),
		}
	}
	return resp, nil
}
