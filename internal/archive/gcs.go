// Google Cloud Storage archive backend.
//
// Snapshots are stored in an upstream GCS bucket under
// {prefix}{listID}/{snapshotID}.json. Credentials are resolved via
// Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS, gcloud
// auth, metadata server).
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/rankstamp/rankstamp/internal/config"
)

// GCSAPI defines the subset of the GCS client interface that the archive
// backend uses. This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object.
	NewWriter(ctx context.Context, bucket, object string) GCSWriter
	// NewReader returns a reader for the given GCS object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete deletes the given GCS object.
	Delete(ctx context.Context, bucket, object string) error
	// ListObjects lists object names with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// GCSWriter is a writer interface for writing to GCS objects.
type GCSWriter interface {
	io.WriteCloser
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) GCSWriter {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// GCSBackend stores snapshots in an upstream Google Cloud Storage bucket.
type GCSBackend struct {
	// Bucket is the upstream GCS bucket name.
	Bucket string
	// Project is the GCP project ID.
	Project string
	// Prefix is the key prefix for all snapshot objects.
	Prefix string
	// client is the GCS client (satisfying GCSAPI).
	client GCSAPI
}

// NewGCSBackend creates a GCSBackend from configuration. It initializes the
// GCS client using Application Default Credentials.
func NewGCSBackend(ctx context.Context, cfg *config.GCSArchiveConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs archive bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	b := &GCSBackend{
		Bucket:  cfg.Bucket,
		Project: cfg.Project,
		Prefix:  cfg.Prefix,
		client:  &realGCSClient{client: client},
	}

	// Verify the upstream bucket is accessible by listing with an
	// improbable prefix.
	if _, err := b.client.ListObjects(ctx, cfg.Bucket, "\x00nonexistent\x00"); err != nil {
		return nil, fmt.Errorf("cannot access GCS archive bucket %q: %w", cfg.Bucket, err)
	}

	slog.Info("GCS archive backend initialized", "bucket", cfg.Bucket, "project", cfg.Project, "prefix", cfg.Prefix)
	return b, nil
}

// NewGCSBackendWithClient creates a GCSBackend with a pre-configured GCS
// client. This is primarily used for testing with mock clients.
func NewGCSBackendWithClient(bucket, project, prefix string, client GCSAPI) *GCSBackend {
	return &GCSBackend{
		Bucket:  bucket,
		Project: project,
		Prefix:  prefix,
		client:  client,
	}
}

// snapshotKey maps a list/snapshot pair to an upstream GCS object name.
func (b *GCSBackend) snapshotKey(listID, snapshotID string) string {
	return b.Prefix + listID + "/" + snapshotID + snapshotSuffix
}

// listPrefix returns the object name prefix shared by a list's snapshots.
func (b *GCSBackend) listPrefix(listID string) string {
	return b.Prefix + listID + "/"
}

func (b *GCSBackend) Put(ctx context.Context, listID, snapshotID string, data []byte) error {
	w := b.client.NewWriter(ctx, b.Bucket, b.snapshotKey(listID, snapshotID))
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading snapshot to GCS: %w", err)
	}
	// Close finalizes the upload; errors surface here.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing GCS snapshot upload: %w", err)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, listID, snapshotID string) ([]byte, error) {
	r, err := b.client.NewReader(ctx, b.Bucket, b.snapshotKey(listID, snapshotID))
	if err != nil {
		if isGCSNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, listID, snapshotID)
		}
		return nil, fmt.Errorf("getting snapshot from GCS: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot data: %w", err)
	}
	return data, nil
}

func (b *GCSBackend) List(ctx context.Context, listID string) ([]string, error) {
	prefix := b.listPrefix(listID)

	names, err := b.client.ListObjects(ctx, b.Bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for %q: %w", listID, err)
	}

	ids := []string{}
	for _, name := range names {
		name = strings.TrimPrefix(name, prefix)
		if !strings.HasSuffix(name, snapshotSuffix) || strings.Contains(name, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapshotSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot object. Idempotent: GCS errors on deleting a
// missing object, so not-found is swallowed.
func (b *GCSBackend) Delete(ctx context.Context, listID, snapshotID string) error {
	err := b.client.Delete(ctx, b.Bucket, b.snapshotKey(listID, snapshotID))
	if err != nil {
		if isGCSNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting snapshot from GCS: %w", err)
	}
	return nil
}

// HealthCheck verifies that the upstream GCS bucket is accessible.
func (b *GCSBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.ListObjects(ctx, b.Bucket, "\x00nonexistent\x00")
	return err
}

// isGCSNotFound checks if a GCS error is a 404/not-found error.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return true
	}
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	// Check error message as fallback.
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return true
		}
	}
	return false
}

// Ensure GCSBackend implements Backend at compile time.
var _ Backend = (*GCSBackend)(nil)
