package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

func TestGenerationClient_Submit(t *testing.T) {
	var got SynthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "{\"value\":\"id1\"}\x1e")
	}))
	defer srv.Close()

	c := NewGenerationClient(srv.URL+"/", nil)
	body, err := c.Submit(context.Background(), SynthesisRequest{Text: "hola", Language: "es", Path: "uploads/audio.wav"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "{\"value\":\"id1\"}\x1e", string(data))
	assert.Equal(t, SynthesisRequest{Text: "hola", Language: "es", Path: "uploads/audio.wav"}, got)
}

func TestGenerationClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGenerationClient(srv.URL, nil).Submit(context.Background(), SynthesisRequest{Text: "hi"})
	require.Error(t, err)

	var subErr *errorsx.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, http.StatusServiceUnavailable, subErr.Status)
}

func TestGenerationClient_SubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGenerationClient(url, nil).Submit(context.Background(), SynthesisRequest{Text: "hi"})
	var subErr *errorsx.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Zero(t, subErr.Status)
}

func TestGenerationClient_Warmup(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewGenerationClient(srv.URL, nil).Warmup(context.Background()))
	assert.Equal(t, map[string]any{"noop": true}, got)
}

func TestGenerationClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ok, err := NewGenerationClient(srv.URL, nil).Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPResolver_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/audio/abc":
			w.Write([]byte{1, 2, 3, 4})
		case "/audio/a%2Fb":
			w.Write([]byte{9})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, nil)

	data, err := r.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	data, err = r.Resolve(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)

	_, err = r.Resolve(context.Background(), "missing")
	var fetchErr *errorsx.SegmentFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "missing", fetchErr.CallID)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
}

func TestHTTPResolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPResolver(url, nil).Resolve(context.Background(), "abc")
	var fetchErr *errorsx.SegmentFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
	assert.Equal(t, errorsx.ReasonSegmentFetch, errorsx.Reason(err))
}
