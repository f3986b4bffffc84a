package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arkilian/worlddb/internal/observability"
)

// S3Store reads and publishes dataset scripts in an S3 bucket. Transient
// failures are retried with exponential backoff; missing keys are not.
// The store owns retrying: NewS3Store disables the SDK retryer, so one
// call costs at most len(backoff)+1 requests.
type S3Store struct {
	client  *s3.Client
	bucket  string
	backoff []time.Duration
}

// S3Config holds the connection settings of an S3 store.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack).
	Endpoint     string
	UsePathStyle bool
}

// NewS3Store creates an S3 store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket string, cfg S3Config) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client, bucket), nil
}

// NewS3StoreWithClient creates an S3 store over a configured client. A
// client with its own retryer multiplies the store's attempts.
func NewS3StoreWithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		backoff: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
	}
}

// Open streams an object from the bucket.
func (s *S3Store) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.do(ctx, "open", func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, ErrObjectNotFound):
		return nil, fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
	default:
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, objectPath, err)
	}
}

// Put uploads an object. The content is buffered so a retry can resend it.
func (s *S3Store) Put(ctx context.Context, objectPath string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	err = s.do(ctx, "put", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectPath),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, objectPath, err)
	}
	return nil
}

// Exists reports whether the bucket holds objectPath.
func (s *S3Store) Exists(ctx context.Context, objectPath string) (bool, error) {
	err := s.do(ctx, "exists", func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return err
	})
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns every object path under prefix, sorted.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			observability.StorageOps.WithLabelValues("s3", "list", "error").Inc()
			return nil, fmt.Errorf("failed to list %s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	observability.StorageOps.WithLabelValues("s3", "list", "ok").Inc()
	sort.Strings(keys)
	return keys, nil
}

// do runs fn, retrying after each backoff step. A missing key is mapped to
// ErrObjectNotFound and returned at once.
func (s *S3Store) do(ctx context.Context, op string, fn func() error) error {
	err := fn()
	for attempt := 0; err != nil && attempt < len(s.backoff); attempt++ {
		if isNotFound(err) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff[attempt]):
		}
		err = fn()
	}

	outcome := "ok"
	switch {
	case err == nil:
	case isNotFound(err):
		outcome, err = "not_found", ErrObjectNotFound
	default:
		outcome = "error"
	}
	observability.StorageOps.WithLabelValues("s3", op, outcome).Inc()
	return err
}

// isNotFound reports whether err is S3's answer for a missing key.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
