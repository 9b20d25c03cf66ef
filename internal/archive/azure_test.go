package archive

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
)

// mockAzureClient implements AzureBlobAPI for unit testing.
type mockAzureClient struct {
	// blobs stores all blobs keyed by their blob name.
	blobs map[string][]byte
	// existsErr, when set, is returned from BlobExists.
	existsErr error

	deleteCalls int
	existsCalls int
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{blobs: make(map[string][]byte)}
}

func (m *mockAzureClient) UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error {
	m.blobs[blobName] = append([]byte(nil), data...)
	return nil
}

func (m *mockAzureClient) DownloadBlob(ctx context.Context, containerName, blobName string) ([]byte, error) {
	data, ok := m.blobs[blobName]
	if !ok {
		return nil, fmt.Errorf("RESPONSE 404: BlobNotFound: The specified blob does not exist.")
	}
	return data, nil
}

func (m *mockAzureClient) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	m.deleteCalls++
	if _, ok := m.blobs[blobName]; !ok {
		return fmt.Errorf("RESPONSE 404: BlobNotFound: The specified blob does not exist.")
	}
	delete(m.blobs, blobName)
	return nil
}

func (m *mockAzureClient) BlobExists(ctx context.Context, containerName, blobName string) (bool, error) {
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.blobs[blobName]
	return ok, nil
}

func (m *mockAzureClient) ListBlobs(ctx context.Context, containerName, prefix string) ([]string, error) {
	var names []string
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names, nil
}

func newTestAzureBackend(t *testing.T) (*AzureBackend, *mockAzureClient) {
	t.Helper()
	mock := newMockAzureClient()
	return NewAzureBackendWithClient("archive-container", "ark/", mock), mock
}

func TestAzurePutAndGet(t *testing.T) {
	b, mock := newTestAzureBackend(t)
	ctx := context.Background()

	data := []byte(`{"version":1}`)
	if err := b.Put(ctx, "tasks", "snap-1", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	wantBlob := "ark/tasks/snap-1.json"
	if _, ok := mock.blobs[wantBlob]; !ok {
		t.Errorf("snapshot should be stored at blob %q", wantBlob)
	}

	got, err := b.Get(ctx, "tasks", "snap-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestAzureGetNotFound(t *testing.T) {
	b, _ := newTestAzureBackend(t)

	_, err := b.Get(context.Background(), "tasks", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestAzureListSortedAndFiltered(t *testing.T) {
	b, mock := newTestAzureBackend(t)
	ctx := context.Background()

	for _, id := range []string{"snap-c", "snap-a", "snap-b"} {
		if err := b.Put(ctx, "tasks", id, []byte("{}")); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}
	if err := b.Put(ctx, "other", "snap-z", []byte("{}")); err != nil {
		t.Fatalf("Put other failed: %v", err)
	}
	mock.blobs["ark/tasks/nested/deep.json"] = []byte("{}")
	mock.blobs["ark/tasks/readme.txt"] = []byte("x")

	ids, err := b.List(ctx, "tasks")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"snap-a", "snap-b", "snap-c"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("List = %v, want %v", ids, want)
	}
}

func TestAzureDeleteIdempotent(t *testing.T) {
	b, mock := newTestAzureBackend(t)
	ctx := context.Background()

	if err := b.Put(ctx, "tasks", "snap-1", []byte("{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := b.Delete(ctx, "tasks", "snap-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Azure errors on deleting a missing blob; the backend swallows it.
	if err := b.Delete(ctx, "tasks", "snap-1"); err != nil {
		t.Errorf("second Delete errored: %v", err)
	}
	if mock.deleteCalls != 2 {
		t.Errorf("deleteCalls = %d, want 2", mock.deleteCalls)
	}
}

func TestAzureHealthCheck(t *testing.T) {
	b, mock := newTestAzureBackend(t)

	if err := b.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
	if mock.existsCalls != 1 {
		t.Errorf("existsCalls = %d, want 1", mock.existsCalls)
	}

	mock.existsErr = fmt.Errorf("AuthorizationFailure")
	if err := b.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should propagate probe errors")
	}
}

func TestIsAzureNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"BlobNotFound code", fmt.Errorf("RESPONSE 404: BlobNotFound"), true},
		{"blob does not exist", fmt.Errorf("The specified blob does not exist."), true},
		{"container missing", fmt.Errorf("ContainerNotFound: no such container"), true},
		{"random error", fmt.Errorf("connection reset"), false},
	}

	for _, tc := range tests {
		if got := isAzureNotFound(tc.err); got != tc.want {
			t.Errorf("%s: isAzureNotFound(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}
