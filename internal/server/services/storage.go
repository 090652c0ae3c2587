package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/haexhub/haex-sync/internal/common"
	sc "github.com/haexhub/haex-sync/internal/server/config"
)

// Test seams, following the pattern used for the AWS client wiring
// elsewhere in the project.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Object is a streamed download: the caller must close Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ContentRange  string
	ETag          string
	LastModified  time.Time
}

// ObjectInfo is object metadata without a body.
type ObjectInfo struct {
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  time.Time
}

// ListOptions mirrors the S3 list query parameters.
type ListOptions struct {
	Prefix            string
	Delimiter         string
	MaxKeys           int32
	ContinuationToken string
}

// ListEntry is one object in a listing.
type ListEntry struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListResult is a bucket listing page.
type ListResult struct {
	Contents              []ListEntry
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// ObjectStore is the gateway's view of the object backend. StorageService
// implements it against an S3-compatible server; tests stub it.
type ObjectStore interface {
	Configured() bool
	BucketFor(userID string) string
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, contentLength int64) (etag string, err error)
	Get(ctx context.Context, bucket, key, rangeHeader string) (*Object, error)
	Head(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)
	Usage(ctx context.Context, bucket string) (int64, error)
}

// StorageService forwards object operations to the backing store with
// root credentials; callers never reach the backend directly.
type StorageService struct {
	cfg    *sc.Config
	client *s3.Client
}

// NewStorageService builds the backend client once at startup. When the
// backend is not configured the service stays in degraded mode and every
// operation reports common.ErrStorageNotConfigured.
func NewStorageService(ctx context.Context, cfg *sc.Config) (*StorageService, error) {
	s := &StorageService{cfg: cfg}
	if !cfg.StorageConfigured() {
		return s, nil
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	s.client = newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})
	return s, nil
}

// Configured reports whether the backend is usable.
func (s *StorageService) Configured() bool {
	return s.client != nil
}

// BucketFor derives the caller's backend bucket from the user id.
func (s *StorageService) BucketFor(userID string) string {
	return s.cfg.S3BucketPrefix + "-" + userID
}

// EnsureBucket creates the bucket idempotently, retrying transient
// failures with backoff. "Already owned" races count as success.
func (s *StorageService) EnsureBucket(ctx context.Context, bucket string) error {
	if s.client == nil {
		return common.ErrStorageNotConfigured
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(bucket),
		})
		if err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			var exists *types.BucketAlreadyExists
			if errors.As(err, &owned) || errors.As(err, &exists) {
				return nil
			}
			return retry.RetryableError(fmt.Errorf("create bucket %s: %w", bucket, err))
		}
		return nil
	})
}

// Put streams an upload to the backend. The body is never buffered.
func (s *StorageService) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, contentLength int64) (string, error) {
	if s.client == nil {
		return "", common.ErrStorageNotConfigured
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// Get streams a download from the backend, forwarding any range header.
func (s *StorageService) Get(ctx context.Context, bucket, key, rangeHeader string) (*Object, error) {
	if s.client == nil {
		return nil, common.ErrStorageNotConfigured
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return &Object{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentRange:  aws.ToString(out.ContentRange),
		ETag:          aws.ToString(out.ETag),
		LastModified:  aws.ToTime(out.LastModified),
	}, nil
}

// Head returns object metadata only.
func (s *StorageService) Head(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if s.client == nil {
		return nil, common.ErrStorageNotConfigured
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("head %s/%s: %w", bucket, key, err)
	}
	return &ObjectInfo{
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
		ETag:          aws.ToString(out.ETag),
		LastModified:  aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes an object. Deleting an absent key succeeds, matching S3.
func (s *StorageService) Delete(ctx context.Context, bucket, key string) error {
	if s.client == nil {
		return common.ErrStorageNotConfigured
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns one listing page. A missing bucket maps to
// common.ErrorNotFound so the handler can synthesize an empty listing.
func (s *StorageService) List(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error) {
	if s.client == nil {
		return nil, common.ErrStorageNotConfigured
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(opts.MaxKeys)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}

	result := &ListResult{
		IsTruncated:           aws.ToBool(out.IsTruncated),
		NextContinuationToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		result.Contents = append(result.Contents, ListEntry{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return result, nil
}

// Usage sums object sizes across the bucket by walking every listing
// page. A missing bucket reports zero usage.
func (s *StorageService) Usage(ctx context.Context, bucket string) (int64, error) {
	if s.client == nil {
		return 0, common.ErrStorageNotConfigured
	}

	var total int64
	var token string
	for {
		page, err := s.List(ctx, bucket, ListOptions{ContinuationToken: token})
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return 0, nil
			}
			return 0, err
		}
		for _, obj := range page.Contents {
			total += obj.Size
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}
	return total, nil
}

// isNotFound matches the backend's missing-bucket and missing-key errors.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return true
	}
	// HeadObject surfaces bare 404s without a typed error.
	return strings.Contains(err.Error(), "StatusCode: 404")
}
