// Package storage persists synthesized audio and hands out short-lived
// retrieval URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexiqai/voice-translator/internal/audio"
	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/observability"
)

// SignedURL is a time-limited retrieval link for one stored object
type SignedURL struct {
	URL              string `json:"url"`
	Key              string `json:"key"`
	ExpiresInSeconds int    `json:"expiresIn"`
}

// Store persists audio under a key and returns a signed URL for it
type Store interface {
	Put(ctx context.Context, key string, data []byte) (*SignedURL, error)
}

// ObjectAPI is the subset of the S3 client used by S3Store
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// PresignAPI is the subset of the S3 presign client used by S3Store
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config configures an S3-compatible store
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Endpoint     string // custom endpoint for S3-compatible services
	UsePathStyle bool
	URLExpiry    time.Duration
}

// S3Store uploads objects with a public-read ACL and presigns GET URLs
type S3Store struct {
	client    ObjectAPI
	presigner PresignAPI
	bucket    string
	expiry    time.Duration
}

// NewS3Store builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("Object storage configured")

	return NewS3StoreWithClients(client, s3.NewPresignClient(client), cfg.Bucket, cfg.URLExpiry), nil
}

// NewS3StoreWithClients wires a store around existing clients
func NewS3StoreWithClients(client ObjectAPI, presigner PresignAPI, bucket string, expiry time.Duration) *S3Store {
	if expiry <= 0 {
		expiry = 60 * time.Second
	}
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		expiry:    expiry,
	}
}

// Put uploads data under key and returns a presigned GET URL for it.
// Failures of either step are a *errorsx.StorageError.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (*SignedURL, error) {
	if len(data) == 0 {
		return nil, &errorsx.StorageError{Op: "upload", Key: key, Err: errors.New("refusing to store empty audio")}
	}

	ctx, span := observability.StartSpan(ctx, "storage.put", "",
		attribute.String("bucket", s.bucket),
		attribute.String("key", key),
		attribute.Int("bytes", len(data)),
	)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(audio.ContentTypeWAV),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		err = &errorsx.StorageError{Op: "upload", Key: key, Err: err}
		observability.EndSpan(span, err)
		return nil, err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		err = &errorsx.StorageError{Op: "presign", Key: key, Err: err}
		observability.EndSpan(span, err)
		return nil, err
	}
	observability.EndSpan(span, nil)

	return &SignedURL{
		URL:              req.URL,
		Key:              key,
		ExpiresInSeconds: int(s.expiry / time.Second),
	}, nil
}

// Ping reports whether the bucket is reachable with the configured credentials
func (s *S3Store) Ping(ctx context.Context) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ObjectKey builds the per-request key <prefix>/<id>.wav
func ObjectKey(prefix, id string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return id + ".wav"
	}
	return path.Join(prefix, id+".wav")
}
