package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-translator/internal/api"
	"github.com/lexiqai/voice-translator/internal/bus"
	"github.com/lexiqai/voice-translator/internal/clone"
	"github.com/lexiqai/voice-translator/internal/config"
	"github.com/lexiqai/voice-translator/internal/jobs"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/resilience"
	"github.com/lexiqai/voice-translator/internal/storage"
	"github.com/lexiqai/voice-translator/internal/stt"
	"github.com/lexiqai/voice-translator/internal/translate"
	"github.com/lexiqai/voice-translator/internal/tts"
)

// ledgerRetention bounds how long finished jobs stay queryable from sqlite
const ledgerRetention = 30 * 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("generation_url", cfg.GenerationURL).
		Str("bucket", cfg.S3Bucket).
		Str("stt_provider", cfg.STTProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice translator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	generationBreaker := newBreaker("generation", cfg.CircuitBreakerMaxFailures, resetTimeout)
	sttBreaker := newBreaker("stt", cfg.CircuitBreakerMaxFailures, resetTimeout)
	translateBreaker := newBreaker("translation", cfg.CircuitBreakerMaxFailures, resetTimeout)

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	reconnect := resilience.DefaultReconnectConfig()
	reconnect.MaxAttempts = cfg.ReconnectMaxAttempts
	reconnect.Backoff = time.Duration(cfg.ReconnectBackoff) * time.Millisecond

	// Generation relay. The stream is bounded by the request deadline, not
	// by a client timeout.
	httpClient := &http.Client{}
	generation := tts.NewGenerationClient(cfg.GenerationURL, httpClient)
	orchestrator := tts.NewOrchestrator(
		generation,
		tts.NewHTTPResolver(cfg.GenerationURL, httpClient),
		generationBreaker,
		cfg.GenerationDeadline(),
	)

	store, err := storage.NewS3Store(ctx, storage.Config{
		Region:       cfg.AWSRegion,
		AccessKey:    cfg.AWSAccessKey,
		SecretKey:    cfg.AWSSecretKey,
		Bucket:       cfg.S3Bucket,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
		URLExpiry:    cfg.SignedURLExpiry(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure object storage")
	}

	// Job tracking
	registry := jobs.NewRegistry(time.Duration(cfg.JobRetention) * time.Second)
	go registry.Run(ctx, time.Minute)

	checks := map[string]observability.HealthCheckFunc{
		"generation": generation.Ping,
		"storage":    store.Ping,
	}

	var ledger *jobs.Ledger
	if cfg.JobStorePath != "" {
		err := resilience.Reconnect(ctx, "job ledger", func() error {
			var err error
			ledger, err = jobs.OpenLedger(ctx, cfg.JobStorePath)
			return err
		}, reconnect)
		if err != nil {
			logger.Error().Err(err).Msg("Job ledger unavailable, continuing without it")
			ledger = nil
		} else {
			defer ledger.Close()
			registry.AddSink(ledger)
			checks["ledger"] = ledger.Ping
			if n, err := ledger.Prune(ctx, ledgerRetention); err != nil {
				logger.Warn().Err(err).Msg("Failed to prune job ledger")
			} else if n > 0 {
				logger.Info().Int64("removed", n).Msg("Pruned job ledger")
			}
		}
	}

	if cfg.NATSURL != "" {
		var publisher *bus.Publisher
		err := resilience.Reconnect(ctx, "nats", func() error {
			var err error
			publisher, err = bus.Connect(ctx, bus.Config{URL: cfg.NATSURL, SubjectPrefix: cfg.NATSSubjectPrefix})
			return err
		}, reconnect)
		if err != nil {
			logger.Error().Err(err).Msg("NATS unavailable, job events disabled")
		} else {
			defer publisher.Close()
			registry.AddSink(publisher)
			checks["nats"] = publisher.Ping
		}
	}

	cloner := clone.NewService(clone.Config{
		Generator:  orchestrator,
		Store:      store,
		Registry:   registry,
		KeyPrefix:  cfg.S3KeyPrefix,
		SourcePath: cfg.SourceAudioPath,
	})

	deps := api.Deps{
		Cloner:   cloner,
		Registry: registry,
		Checks:   checks,
		Metrics:  cfg.MetricsEnabled,
	}
	if ledger != nil {
		deps.Ledger = ledger
	}
	if provider := newTranscriber(cfg); provider != nil {
		transcriber := stt.NewService(provider, sttBreaker, retry, cfg.SilenceThreshold)
		deps.Transcriber = transcriber
		logger.Info().Str("provider", transcriber.Provider()).Msg("Transcription enabled at /transcribe")
	} else {
		logger.Warn().Str("provider", cfg.STTProvider).Msg("No speech-to-text key configured, /transcribe disabled")
	}
	if key := cfg.TranslationAPIKey(); key != "" {
		translator := translate.New(translate.Config{
			APIKey:  key,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.TranslationModel,
			Breaker: translateBreaker,
			Retry:   retry,
		})
		deps.Translator = translator
		logger.Info().Str("model", translator.Model()).Msg("Translation enabled at /translate")
	} else {
		logger.Warn().Msg("No OpenAI key configured, /translate disabled")
	}

	logger.Info().Strs("checks", observability.CheckNames(checks)).Msg("Readiness checks configured")

	if cfg.GRPCHealthPort != "" {
		grpcHealth := observability.NewGRPCHealthServer(checks, 10*time.Second)
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		go func() {
			if err := grpcHealth.Serve(ctx, lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		logger.Info().Str("port", cfg.GRPCHealthPort).Msg("gRPC health service enabled")
	}

	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Writes may last as long as a full
	// generation plus the upload.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           api.NewServer(deps).Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.GenerationDeadline() + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/clone", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush traces")
	}

	logger.Info().Msg("Server exited gracefully")
}

func newBreaker(name string, maxFailures int, resetTimeout time.Duration) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(name, maxFailures, resetTimeout)
	cb.OnStateChange(func(service string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(service, int(state))
		if state == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(service)
		}
		observability.GetLogger().Warn().Str("service", service).Str("state", state.String()).Msg("Circuit breaker state changed")
	})
	return cb
}

func newTranscriber(cfg *config.Config) stt.Transcriber {
	switch cfg.STTProvider {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil
		}
		return stt.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.DeepgramLanguage)
	default:
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return stt.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel, nil)
	}
}
