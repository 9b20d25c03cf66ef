// Amazon S3 archive backend.
//
// Snapshots are stored in an upstream S3 bucket under
// {prefix}{listID}/{snapshotID}.json. Credentials are resolved via the
// standard AWS credential chain (env vars, ~/.aws/credentials, IAM role,
// etc.), with optional static overrides for S3-compatible endpoints.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/rankstamp/rankstamp/internal/config"
)

// S3API defines the subset of the AWS S3 client interface that the archive
// backend uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Backend stores snapshots in an upstream Amazon S3 bucket.
type S3Backend struct {
	// Bucket is the upstream S3 bucket name.
	Bucket string
	// Prefix is the key prefix for all snapshot objects.
	Prefix string
	// client is the AWS S3 client (satisfying S3API).
	client S3API
}

// NewS3Backend creates an S3Backend from configuration. It initializes the
// AWS SDK client using the default credential chain, with optional overrides
// for a custom endpoint, path-style addressing, and static credentials.
func NewS3Backend(ctx context.Context, cfg *config.S3ArchiveConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	b := &S3Backend{
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
		client: client,
	}

	// Verify the upstream bucket is accessible.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("cannot access S3 archive bucket %q: %w", cfg.Bucket, err)
	}

	slog.Info("S3 archive backend initialized", "bucket", cfg.Bucket, "region", cfg.Region, "prefix", cfg.Prefix)
	return b, nil
}

// NewS3BackendWithClient creates an S3Backend with a pre-configured S3
// client. This is primarily used for testing with mock clients.
func NewS3BackendWithClient(bucket, prefix string, client S3API) *S3Backend {
	return &S3Backend{
		Bucket: bucket,
		Prefix: prefix,
		client: client,
	}
}

// snapshotKey maps a list/snapshot pair to an upstream S3 key.
func (b *S3Backend) snapshotKey(listID, snapshotID string) string {
	return b.Prefix + listID + "/" + snapshotID + snapshotSuffix
}

// listPrefix returns the key prefix shared by a list's snapshots.
func (b *S3Backend) listPrefix(listID string) string {
	return b.Prefix + listID + "/"
}

func (b *S3Backend) Put(ctx context.Context, listID, snapshotID string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.Bucket),
		Key:           aws.String(b.snapshotKey(listID, snapshotID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot to S3: %w", err)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, listID, snapshotID string) ([]byte, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.snapshotKey(listID, snapshotID)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, listID, snapshotID)
		}
		return nil, fmt.Errorf("getting snapshot from S3: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot data: %w", err)
	}
	return data, nil
}

func (b *S3Backend) List(ctx context.Context, listID string) ([]string, error) {
	prefix := b.listPrefix(listID)
	ids := []string{}

	var continuationToken *string
	for {
		resp, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("listing snapshots for %q: %w", listID, err)
		}

		for _, obj := range resp.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if !strings.HasSuffix(name, snapshotSuffix) || strings.Contains(name, "/") {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, snapshotSuffix))
		}

		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		continuationToken = resp.NextContinuationToken
	}

	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot object. Idempotent: S3 DeleteObject does not
// error on missing keys.
func (b *S3Backend) Delete(ctx context.Context, listID, snapshotID string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.snapshotKey(listID, snapshotID)),
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot from S3: %w", err)
	}
	return nil
}

// HealthCheck verifies that the upstream S3 bucket is accessible.
func (b *S3Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.Bucket),
	})
	return err
}

// isS3NotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// Ensure S3Backend implements Backend at compile time.
var _ Backend = (*S3Backend)(nil)
