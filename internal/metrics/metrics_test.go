package metrics

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs/something", "/docs"},
		{"/metrics", "/metrics"},
		{"/openapi.json", "/openapi.json"},
		{"/openapi.yaml", "/openapi.json"},
		{"/", "/"},
		{"", "/"},
		{"/v1/lists", "/v1/lists"},
		{"/v1/lists/", "/v1/lists"},
		{"/v1/lists/todo", "/v1/lists/{list}"},
		{"/v1/lists/todo/items", "/v1/lists/{list}/items"},
		{"/v1/lists/todo/items/abc123", "/v1/lists/{list}/items/{item}"},
		{"/v1/lists/todo/items/abc123/move", "/v1/lists/{list}/items/{item}/move"},
		{"/v1/lists/todo/snapshots", "/v1/lists/{list}/snapshots"},
		{"/v1/lists/todo/snapshots/snap1/restore", "/v1/lists/{list}/snapshots/{snapshot}/restore"},
		{"/unknown/path", "/other"},
		{"/v2/lists", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	// Register metrics explicitly (replaces former init() auto-registration).
	Register()

	// Verify that calling Inc/Set on metrics does not panic.
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)
	HTTPRequestSize.WithLabelValues("POST", "/v1/lists/{list}/items").Observe(1024)
	HTTPResponseSize.WithLabelValues("GET", "/v1/lists/{list}/items").Observe(2048)
	OperationsTotal.WithLabelValues("InsertItem", "success").Inc()
	StampsMintedTotal.WithLabelValues("between").Inc()
	StampLengthChars.Observe(33)
	ListsTotal.Set(3)
	ItemsTotal.Set(42)
	BytesReceivedTotal.Add(1024)
	BytesSentTotal.Add(2048)
}
