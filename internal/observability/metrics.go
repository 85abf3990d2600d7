package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Clone request metrics
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_translator_active_jobs",
		Help: "Number of clone requests currently generating or uploading",
	})

	cloneRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_clone_requests_total",
		Help: "Total number of clone requests by outcome",
	}, []string{"status"}) // status: success, error, warmup

	cloneDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_translator_clone_duration_seconds",
		Help:    "End-to-end duration of clone requests in seconds",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})

	// Generation metrics
	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_translator_generation_latency_seconds",
		Help:    "Time from submission to last resolved segment in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	})

	segmentsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_translator_segments_resolved_total",
		Help: "Total number of audio segments fetched from the generation service",
	})

	segmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_translator_segment_fetch_seconds",
		Help:    "Per-segment fetch latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Storage metrics
	storageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_translator_storage_latency_seconds",
		Help:    "Object storage upload latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"status"})

	// STT / translation metrics
	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_stt_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"provider", "status"})

	translationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_translation_requests_total",
		Help: "Total number of translation requests",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_errors_total",
		Help: "Total number of errors",
	}, []string{"reason", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_translator_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_translator_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" (uploaded recordings) or "out" (synthesized)
)

// JobMetrics tracks metrics for a single clone request
type JobMetrics struct {
	jobID               string
	startTime           time.Time
	generationStartTime time.Time
	storageStartTime    time.Time
	started             bool
	mu                  sync.Mutex
}

// NewJobMetrics creates a new metrics tracker for a clone request
func NewJobMetrics(jobID string) *JobMetrics {
	return &JobMetrics{
		jobID:     jobID,
		startTime: time.Now(),
	}
}

// RecordJobStart records the start of a clone request
func (m *JobMetrics) RecordJobStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	activeJobs.Inc()
}

// RecordJobEnd records the end of a clone request
func (m *JobMetrics) RecordJobEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		activeJobs.Dec()
		m.started = false
	}
	cloneDuration.Observe(time.Since(m.startTime).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	cloneRequests.WithLabelValues(status).Inc()
}

// RecordWarmup counts a warm-up request
func (m *JobMetrics) RecordWarmup() {
	cloneRequests.WithLabelValues("warmup").Inc()
}

// RecordGenerationStart records the submission of a synthesis request
func (m *JobMetrics) RecordGenerationStart() {
	m.mu.Lock()
	m.generationStartTime = time.Now()
	m.mu.Unlock()
}

// RecordGenerationEnd records the end of stream consumption
func (m *JobMetrics) RecordGenerationEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success && !m.generationStartTime.IsZero() {
		generationLatency.Observe(time.Since(m.generationStartTime).Seconds())
	}
}

// RecordSegment records one resolved segment
func (m *JobMetrics) RecordSegment(size int, latency time.Duration) {
	segmentsResolved.Inc()
	segmentLatency.Observe(latency.Seconds())
	audioBytes.WithLabelValues("out").Add(float64(size))
}

// RecordStorageStart records the start of an upload
func (m *JobMetrics) RecordStorageStart() {
	m.mu.Lock()
	m.storageStartTime = time.Now()
	m.mu.Unlock()
}

// RecordStorageEnd records the end of an upload
func (m *JobMetrics) RecordStorageEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	if !m.storageStartTime.IsZero() {
		storageLatency.WithLabelValues(status).Observe(time.Since(m.storageStartTime).Seconds())
	}
}

// RecordError records an error
func RecordError(reason, component string) {
	errorsTotal.WithLabelValues(reason, component).Inc()
}

// RecordSTTRequest records a transcription call
func RecordSTTRequest(provider string, success bool, inputBytes int) {
	status := "success"
	if !success {
		status = "error"
	}
	sttRequests.WithLabelValues(provider, status).Inc()
	audioBytes.WithLabelValues("in").Add(float64(inputBytes))
}

// RecordTranslationRequest records a translation call
func RecordTranslationRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	translationRequests.WithLabelValues(status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
