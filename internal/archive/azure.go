// Azure Blob Storage archive backend.
//
// Snapshots are stored in an upstream Azure Blob container under
// {prefix}{listID}/{snapshotID}.json. Credentials are resolved via a
// connection string when configured, otherwise DefaultAzureCredential
// (env vars, managed identity, Azure CLI, etc.).
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rankstamp/rankstamp/internal/config"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the archive backend uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadBlob uploads data to a blob, overwriting if it already exists.
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
	// DownloadBlob downloads a blob's contents.
	DownloadBlob(ctx context.Context, containerName, blobName string) ([]byte, error)
	// DeleteBlob deletes a blob. Returns an error if the blob does not exist.
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	// BlobExists checks if a blob exists.
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
	// ListBlobs lists blob names with the given prefix.
	ListBlobs(ctx context.Context, containerName, prefix string) ([]string, error)
}

// AzureBackend stores snapshots in an upstream Azure Blob container.
type AzureBackend struct {
	// Container is the upstream Azure Blob container name.
	Container string
	// AccountURL is the Azure storage account URL
	// (e.g. https://account.blob.core.windows.net).
	AccountURL string
	// Prefix is the blob name prefix for all snapshot blobs.
	Prefix string
	// client is the Azure Blob client (satisfying AzureBlobAPI).
	client AzureBlobAPI
}

// NewAzureBackend creates an AzureBackend from configuration. When
// cfg.AccountURL is empty it is derived from cfg.Account.
func NewAzureBackend(ctx context.Context, cfg *config.AzureArchiveConfig) (*AzureBackend, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure archive container is required")
	}

	accountURL := cfg.AccountURL
	if accountURL == "" && cfg.Account != "" {
		accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	if accountURL == "" && cfg.ConnectionString == "" {
		return nil, fmt.Errorf("azure archive account, account_url, or connection_string is required")
	}

	client, err := newRealAzureClient(accountURL, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}

	b := &AzureBackend{
		Container:  cfg.Container,
		AccountURL: accountURL,
		Prefix:     cfg.Prefix,
		client:     client,
	}

	// Verify the upstream container is accessible by probing a blob that
	// cannot exist.
	if _, err := b.client.BlobExists(ctx, cfg.Container, "\x00nonexistent\x00"); err != nil {
		return nil, fmt.Errorf("cannot access Azure archive container %q: %w", cfg.Container, err)
	}

	slog.Info("Azure archive backend initialized", "container", cfg.Container, "account", accountURL, "prefix", cfg.Prefix)
	return b, nil
}

// NewAzureBackendWithClient creates an AzureBackend with a pre-configured
// Azure Blob client. This is primarily used for testing with mock clients.
func NewAzureBackendWithClient(container, prefix string, client AzureBlobAPI) *AzureBackend {
	return &AzureBackend{
		Container: container,
		Prefix:    prefix,
		client:    client,
	}
}

// snapshotBlob maps a list/snapshot pair to an upstream blob name.
func (b *AzureBackend) snapshotBlob(listID, snapshotID string) string {
	return b.Prefix + listID + "/" + snapshotID + snapshotSuffix
}

// listPrefix returns the blob name prefix shared by a list's snapshots.
func (b *AzureBackend) listPrefix(listID string) string {
	return b.Prefix + listID + "/"
}

func (b *AzureBackend) Put(ctx context.Context, listID, snapshotID string, data []byte) error {
	if err := b.client.UploadBlob(ctx, b.Container, b.snapshotBlob(listID, snapshotID), data); err != nil {
		return fmt.Errorf("uploading snapshot to Azure Blob: %w", err)
	}
	return nil
}

func (b *AzureBackend) Get(ctx context.Context, listID, snapshotID string) ([]byte, error) {
	data, err := b.client.DownloadBlob(ctx, b.Container, b.snapshotBlob(listID, snapshotID))
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, listID, snapshotID)
		}
		return nil, fmt.Errorf("getting snapshot from Azure Blob: %w", err)
	}
	return data, nil
}

func (b *AzureBackend) List(ctx context.Context, listID string) ([]string, error) {
	prefix := b.listPrefix(listID)

	names, err := b.client.ListBlobs(ctx, b.Container, prefix)
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

// Delete removes a snapshot blob. Idempotent: Azure errors on deleting a
// missing blob, so not-found is swallowed.
func (b *AzureBackend) Delete(ctx context.Context, listID, snapshotID string) error {
	err := b.client.DeleteBlob(ctx, b.Container, b.snapshotBlob(listID, snapshotID))
	if err != nil {
		if isAzureNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting snapshot from Azure Blob: %w", err)
	}
	return nil
}

// HealthCheck verifies that the upstream Azure Blob container is accessible.
func (b *AzureBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.BlobExists(ctx, b.Container, "\x00nonexistent\x00")
	return err
}

// isAzureNotFound checks if an Azure error is a not-found error.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "containernotfound") ||
		strings.Contains(msg, "the specified blob does not exist") ||
		strings.Contains(msg, "the specified container does not exist") {
		return true
	}
	return false
}

// Ensure AzureBackend implements Backend at compile time.
var _ Backend = (*AzureBackend)(nil)
