// Package api exposes the translation backend over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-translator/internal/clone"
	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/jobs"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/stt"
	"github.com/lexiqai/voice-translator/internal/tts"
)

// CorrelationHeader carries the request correlation id in and out
const CorrelationHeader = "X-Correlation-ID"

const (
	maxUploadBytes = 25 << 20 // Whisper's upload limit
	maxJSONBytes   = 1 << 20

	defaultJobListLimit = 50
	maxJobListLimit     = 500
)

// Cloner runs clone requests
type Cloner interface {
	Clone(ctx context.Context, id string, req clone.Request, obs tts.Observer) (*clone.Response, error)
}

// Transcriber turns a recording into text
type Transcriber interface {
	Transcribe(ctx context.Context, rec stt.Recording) (string, error)
}

// Translator translates text into a language
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// JobStore looks up finished jobs that have left the in-memory registry
type JobStore interface {
	Get(ctx context.Context, id string) (jobs.Job, bool, error)
	Recent(ctx context.Context, limit int) ([]jobs.Job, error)
}

// Deps are the collaborators behind the routes. Nil collaborators leave
// their routes unregistered.
type Deps struct {
	Cloner      Cloner
	Transcriber Transcriber
	Translator  Translator
	Registry    *jobs.Registry
	Ledger      JobStore
	Checks      map[string]observability.HealthCheckFunc
	Metrics     bool
}

// Server holds the HTTP handlers
type Server struct {
	deps Deps
}

// NewServer creates the handler set
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Routes builds the request multiplexer
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(s.deps.Checks))
	if s.deps.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if s.deps.Cloner != nil {
		mux.HandleFunc("POST /clone", s.handleClone)
		mux.HandleFunc("GET /ws/clone", s.handleCloneWS)
	}
	if s.deps.Transcriber != nil {
		mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	}
	if s.deps.Translator != nil {
		mux.HandleFunc("POST /translate", s.handleTranslate)
	}
	if s.deps.Registry != nil || s.deps.Ledger != nil {
		mux.HandleFunc("GET /jobs", s.handleJobs)
		mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	}

	return withCORS(mux)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Translation API up and running")
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	id := observability.CorrelationIDFrom(r.Header.Get(CorrelationHeader))
	w.Header().Set(CorrelationHeader, id)

	var req clone.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, id, err)
		return
	}

	resp, err := s.deps.Cloner.Clone(r.Context(), id, req, nil)
	if err != nil {
		writeError(w, id, err)
		return
	}
	if resp.Warmup {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "warming", "id": resp.ID})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	id := observability.CorrelationIDFrom(r.Header.Get(CorrelationHeader))
	w.Header().Set(CorrelationHeader, id)
	logger := observability.WithCorrelationID(id)
	ctx := observability.IntoContext(r.Context(), logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Debug().Err(err).Msg("Transcription upload without file")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No file uploaded", Reason: errorsx.ReasonInvalidRequest, ID: id})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, id, fmt.Errorf("%w: read upload: %v", errorsx.ErrInvalidRequest, err))
		return
	}

	text, err := s.deps.Transcriber.Transcribe(ctx, stt.Recording{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if errors.Is(err, stt.ErrSilentAudio) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Reason: errorsx.ReasonInvalidRequest, ID: id})
		return
	}
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

type translateRequest struct {
	Transcription string `json:"transcription"`
	Language      string `json:"language"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	id := observability.CorrelationIDFrom(r.Header.Get(CorrelationHeader))
	w.Header().Set(CorrelationHeader, id)
	ctx := observability.IntoContext(r.Context(), observability.WithCorrelationID(id))

	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, id, err)
		return
	}

	out, err := s.deps.Translator.Translate(ctx, req.Transcription, req.Language)
	if err != nil {
		writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"translation": out})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.deps.Registry != nil {
		if job, ok := s.deps.Registry.Get(id); ok {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}
	if s.deps.Ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		job, ok, err := s.deps.Ledger.Get(ctx, id)
		if err != nil {
			observability.FromContext(ctx).Error().Err(err).Str("correlation_id", id).Msg("Job ledger lookup failed")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "job lookup failed", Reason: errorsx.ReasonUnknown, ID: id})
			return
		}
		if ok {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found", Reason: errorsx.ReasonInvalidRequest, ID: id})
}

type jobList struct {
	Active int        `json:"active"`
	Jobs   []jobs.Job `json:"jobs"`
}

// handleJobs lists tracked jobs: live ones from the registry first, then
// finished ones from the ledger that the registry no longer holds.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer", Reason: errorsx.ReasonInvalidRequest})
			return
		}
		limit = min(n, maxJobListLimit)
	}

	out := jobList{Jobs: []jobs.Job{}}
	seen := make(map[string]bool)
	if s.deps.Registry != nil {
		out.Active = s.deps.Registry.Active()
		for _, job := range s.deps.Registry.List() {
			seen[job.ID] = true
			out.Jobs = append(out.Jobs, job)
		}
	}
	if s.deps.Ledger != nil && len(out.Jobs) < limit {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		recent, err := s.deps.Ledger.Recent(ctx, limit)
		if err != nil {
			observability.FromContext(ctx).Warn().Err(err).Msg("Job ledger listing failed, returning live jobs only")
		}
		for _, job := range recent {
			if !seen[job.ID] {
				out.Jobs = append(out.Jobs, job)
			}
		}
	}
	if len(out.Jobs) > limit {
		out.Jobs = out.Jobs[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error  string             `json:"error"`
	Reason errorsx.ReasonCode `json:"reason"`
	ID     string             `json:"id,omitempty"`
}

func writeError(w http.ResponseWriter, id string, err error) {
	writeJSON(w, errorsx.HTTPStatus(err), errorBody{
		Error:  err.Error(),
		Reason: errorsx.Reason(err),
		ID:     id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errorsx.ErrInvalidRequest, err)
	}
	return nil
}

// withCORS allows the browser client on any origin
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+CorrelationHeader)
		h.Set("Access-Control-Expose-Headers", CorrelationHeader)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
