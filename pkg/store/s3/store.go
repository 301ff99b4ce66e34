// Package s3 provides an S3-backed chunk store implementation.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// Config holds configuration for the S3 chunk store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all chunk keys (e.g., "chunks/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool
}

// Store is an S3-backed implementation of store.Store.
// Chunks are stored flat under KeyPrefix, keyed by their content hash.
// S3 handles key fan-out natively so no directory sharding is needed.
type Store struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string
	closed    bool
	mu        sync.RWMutex
}

// New creates a new S3 chunk store with an existing client.
func New(client *awss3.Client, config Config) *Store {
	return &Store{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
	}
}

// NewFromConfig creates a new S3 chunk store by creating an S3 client from config.
// This is the preferred constructor when you don't have an existing S3 client.
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}

	// Standard mode retries transient faults with capped exponential backoff.
	opts = append(opts,
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithRetryMaxAttempts(5),
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)

	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)

	return New(client, config), nil
}

// fullKey returns the full S3 key for a chunk hash.
func (s *Store) fullKey(hash chunk.Hash) string {
	return s.keyPrefix + string(hash)
}

// Put uploads a chunk payload, validating its digest first.
func (s *Store) Put(ctx context.Context, hash chunk.Hash, data []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if !hash.Valid() {
		return store.ErrInvalidHash
	}
	if chunk.Sum(data) != hash {
		return store.ErrHashMismatch
	}

	// A re-put overwrites with byte-identical content, which S3 treats as a
	// no-op, so no existence check is needed for idempotency.
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(hash)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	return nil
}

// Get downloads a chunk payload.
func (s *Store) Get(ctx context.Context, hash chunk.Hash) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if !hash.Valid() {
		return nil, store.ErrInvalidHash
	}

	resp, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(hash)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrChunkNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}

	return data, nil
}

// Delete removes a chunk. S3 DeleteObject succeeds on absent keys, which
// matches the absent-is-noop contract directly.
func (s *Store) Delete(ctx context.Context, hash chunk.Hash) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if !hash.Valid() {
		return store.ErrInvalidHash
	}

	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(hash)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}

	return nil
}

// List returns one page of stored chunks ordered by hash.
func (s *Store) List(ctx context.Context, prefix string, token string, limit int) (*store.Page, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.keyPrefix + prefix),
		MaxKeys: aws.Int32(int32(limit)),
	}
	if token != "" {
		input.StartAfter = aws.String(s.keyPrefix + token)
	}

	resp, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3 list objects: %w", err)
	}

	page := &store.Page{}
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		if s.keyPrefix != "" {
			if !strings.HasPrefix(key, s.keyPrefix) {
				continue
			}
			key = key[len(s.keyPrefix):]
		}
		h, err := chunk.ParseHash(key)
		if err != nil {
			continue // foreign object under our prefix
		}

		page.Chunks = append(page.Chunks, store.Info{
			Hash: h,
			Size: aws.ToInt64(obj.Size),
			Tier: chunk.TierWarm,
		})
	}

	if aws.ToBool(resp.IsTruncated) && len(page.Chunks) > 0 {
		page.NextToken = string(page.Chunks[len(page.Chunks)-1].Hash)
	}

	return page, nil
}

// Stats walks the bucket prefix and reports chunk count and bytes.
// Capacity fields are zero; S3 is effectively unbounded.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrStoreClosed
	}
	s.mu.RUnlock()

	stats := &store.Stats{}

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			stats.ChunkCount++
			stats.UsedBytes += uint64(aws.ToInt64(obj.Size))
		}
	}

	return stats, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// HealthCheck verifies the S3 bucket is accessible.
// Performs a HeadBucket call to check connectivity and permissions.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrStoreClosed
	}
	s.mu.RUnlock()

	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}

	return nil
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
