package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice translator service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"3000"`

	// Voice generation service. The clone relay posts to <url>/generate and
	// fetches each segment from <url>/audio/<call id>.
	GenerationURL     string `envconfig:"GENERATION_URL" required:"true"`
	GenerationTimeout int    `envconfig:"GENERATION_TIMEOUT" default:"180"` // seconds, submit through last segment
	SourceAudioPath   string `envconfig:"SOURCE_AUDIO_PATH" default:"uploads/audio.wav"`

	// Object storage (S3 or any S3-compatible endpoint)
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKey   string `envconfig:"AWS_ACC_KEY" default:""`
	AWSSecretKey   string `envconfig:"AWS_SECRET_KEY" default:""`
	S3Bucket       string `envconfig:"S3_BUCKET" required:"true"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT" default:""`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`
	S3KeyPrefix    string `envconfig:"S3_KEY_PREFIX" default:"models/uploads"`
	SignedURLTTL   int    `envconfig:"SIGNED_URL_TTL" default:"60"` // seconds

	// Speech-to-text provider: openai or deepgram
	STTProvider        string `envconfig:"STT_PROVIDER" default:"openai"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAITranslateKey string `envconfig:"OPENAI_API_KEY2" default:""` // falls back to OPENAI_API_KEY
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL" default:""`
	TranscriptionModel string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranslationModel   string `envconfig:"TRANSLATION_MODEL" default:"gpt-3.5-turbo"`
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel      string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage   string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Silence gate for uploaded recordings
	SilenceThreshold float64 `envconfig:"SILENCE_THRESHOLD" default:"100.0"` // RMS energy, 0 disables

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Transcription/translation only
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Startup connection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Job tracking
	JobStorePath      string `envconfig:"JOB_STORE_PATH" default:""`       // sqlite ledger, empty disables
	JobRetention      int    `envconfig:"JOB_RETENTION" default:"600"`     // seconds finished jobs stay in memory
	NATSURL           string `envconfig:"NATS_URL" default:""`             // job events, empty disables
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"voice.clone"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
	OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT" default:""` // stdout exporter when empty
	OTLPInsecure   bool   `envconfig:"OTLP_INSECURE" default:"true"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.GenerationURL) == "" {
		return fmt.Errorf("GENERATION_URL is required")
	}
	if strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %d", c.GenerationTimeout)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive, got %d", c.SignedURLTTL)
	}
	switch c.STTProvider {
	case "openai", "deepgram":
	default:
		return fmt.Errorf("STT_PROVIDER must be openai or deepgram, got %q", c.STTProvider)
	}
	return nil
}

// GenerationDeadline is the overall budget for one generation request
func (c *Config) GenerationDeadline() time.Duration {
	return time.Duration(c.GenerationTimeout) * time.Second
}

// SignedURLExpiry is how long a returned audio URL stays valid
func (c *Config) SignedURLExpiry() time.Duration {
	return time.Duration(c.SignedURLTTL) * time.Second
}

// TranslationAPIKey returns the key used for translation calls
func (c *Config) TranslationAPIKey() string {
	if c.OpenAITranslateKey != "" {
		return c.OpenAITranslateKey
	}
	return c.OpenAIAPIKey
}
