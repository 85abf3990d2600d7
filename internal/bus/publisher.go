// Package bus publishes clone job events to NATS for downstream consumers
// (analytics, notification workers).
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voice-translator/internal/jobs"
)

// Config configures the NATS connection
type Config struct {
	URL            string
	SubjectPrefix  string
	Name           string
	ConnectTimeout time.Duration
}

// Event is the payload published for each job change
type Event struct {
	ID        string     `json:"id"`
	State     jobs.State `json:"state"`
	Warmup    bool       `json:"warmup,omitempty"`
	Language  string     `json:"language,omitempty"`
	Segments  int        `json:"segments"`
	Bytes     int        `json:"bytes"`
	Key       string     `json:"key,omitempty"`
	Error     string     `json:"error,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Publisher sends job events to <prefix>.<state>. It implements jobs.Sink.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

var _ jobs.Sink = (*Publisher)(nil)

// Connect dials NATS
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if cfg.Name == "" {
		cfg.Name = "voice-translator"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info().Str("servers", cfg.URL).Msg("Connected to NATS")
	return NewPublisher(conn, cfg.SubjectPrefix), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "voice.clone"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the subject events for state are published on
func (p *Publisher) Subject(state jobs.State) string {
	return p.prefix + "." + string(state)
}

// Record publishes the job snapshot
func (p *Publisher) Record(ctx context.Context, job jobs.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Event{
		ID:        job.ID,
		State:     job.State,
		Warmup:    job.Warmup,
		Language:  job.Language,
		Segments:  job.Segments,
		Bytes:     job.Bytes,
		Key:       job.Key,
		Error:     job.Error,
		Reason:    string(job.Reason),
		Timestamp: job.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(job.State))
	msg.Data = payload
	msg.Header.Set("Correlation-Id", job.ID)
	return p.conn.PublishMsg(msg)
}

// Healthy reports whether the connection is up
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Ping is a readiness check
func (p *Publisher) Ping(ctx context.Context) (bool, error) {
	if !p.Healthy() {
		return false, errors.New("nats not connected")
	}
	return true, nil
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	log.Info().Msg("Closing NATS connection")
	p.conn.Drain()
	p.conn.Close()
}
