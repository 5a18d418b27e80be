// Package blobstore keeps receipts and form attachments in S3 (or any
// S3-compatible endpoint such as MinIO).
package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
)

var tracer = otel.Tracer("blobstore")

const serviceName = "blob_store"

// s3API is the subset of *s3.Client the store needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Options configures the S3 client.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, enables path-style addressing
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements port.BlobStore.
type S3Store struct {
	client  s3API
	bucket  string
	cb      *gobreaker.CircuitBreaker
	cfg     resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ port.BlobStore = (*S3Store)(nil)

// NewS3 builds an S3 client from the default AWS credential chain,
// overridden by static keys when given.
func NewS3(ctx context.Context, opts Options, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("blobstore: bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(client, opts.Bucket, cb, cfg, metrics, logger), nil
}

func newStore(client s3API, bucket string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, cb: cb, cfg: cfg, metrics: metrics, logger: logger}
}

// Save stores data under folder with a random key and returns that key.
func (s *S3Store) Save(ctx context.Context, folder, filename string, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "BlobStore.Save")
	defer span.End()

	if len(data) == 0 {
		return "", &domain.ErrValidation{Field: "file", Message: "arquivo vazio"}
	}
	key := objectKey(folder, filename)
	contentType := http.DetectContentType(data)
	span.SetAttributes(attribute.String("key", key), attribute.String("content_type", contentType))

	start := time.Now()
	_, err := resilience.Call(ctx, s.cb, s.cfg, func() (*s3.PutObjectOutput, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
		})
	})
	s.metrics.RecordRequestDuration("blobstore.save", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError(serviceName)
		span.RecordError(err)
		s.logger.Error("blobstore: save failed", zap.String("key", key), zap.Error(err))
		return "", &domain.ErrExternalService{Service: serviceName, Err: err}
	}

	s.logger.Debug("blobstore: saved", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

// Retrieve reads an object. key may be given with or without its folder prefix.
func (s *S3Store) Retrieve(ctx context.Context, folder, key string) (*domain.BlobFile, error) {
	ctx, span := tracer.Start(ctx, "BlobStore.Retrieve")
	defer span.End()

	if key == "" {
		return nil, &domain.ErrValidation{Field: "key", Message: "chave do arquivo vazia"}
	}
	full := key
	if folder != "" && !strings.HasPrefix(key, folder+"/") {
		full = folder + "/" + key
	}
	span.SetAttributes(attribute.String("key", full))

	start := time.Now()
	out, err := resilience.Call(ctx, s.cb, s.cfg, func() (*s3.GetObjectOutput, error) {
		o, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(full),
		})
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, resilience.Permanent(err)
		}
		return o, err
	})
	s.metrics.RecordRequestDuration("blobstore.retrieve", time.Since(start))
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &domain.ErrNotFound{Resource: "arquivo", ID: full}
		}
		s.metrics.IncrExternalError(serviceName)
		span.RecordError(err)
		s.logger.Error("blobstore: retrieve failed", zap.String("key", full), zap.Error(err))
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		s.metrics.IncrExternalError(serviceName)
		return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	return describe(full, aws.ToString(out.ContentType), data), nil
}

// Ping checks that the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func objectKey(folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	key := uuid.NewString() + ext
	if folder == "" {
		return key
	}
	return folder + "/" + key
}

// describe sniffs the content type and inlines images and PDFs as base64.
func describe(key, contentType string, data []byte) *domain.BlobFile {
	if contentType == "" || contentType == "application/octet-stream" || contentType == "binary/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	f := &domain.BlobFile{Key: key, ContentType: contentType, Data: data}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "application/pdf") {
		f.Base64 = base64.StdEncoding.EncodeToString(data)
	}
	return f
}
