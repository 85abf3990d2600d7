package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

// HTTPResolver fetches segments from <baseURL>/audio/<call id>
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver for the generation service at baseURL
func NewHTTPResolver(baseURL string, httpClient *http.Client) *HTTPResolver {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Resolve downloads the full audio body for callID.
// It does not retry; any failure is a *errorsx.SegmentFetchError.
func (r *HTTPResolver) Resolve(ctx context.Context, callID string) ([]byte, error) {
	endpoint := r.baseURL + "/audio/" + url.PathEscape(callID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &errorsx.SegmentFetchError{CallID: callID, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &errorsx.SegmentFetchError{CallID: callID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &errorsx.SegmentFetchError{
			CallID: callID,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("generation service returned status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errorsx.SegmentFetchError{CallID: callID, Err: fmt.Errorf("failed to read segment body: %w", err)}
	}
	return data, nil
}
