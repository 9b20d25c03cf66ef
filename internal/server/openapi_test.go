package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

// TestOpenAPICoversAllOperations checks that the generated OpenAPI
// document describes every registered route. A route missing here means
// it was registered on the router directly instead of through the API.
func TestOpenAPICoversAllOperations(t *testing.T) {
	srv := newTestServer(t)
	rec := testRequest(t, srv, "GET", "/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /openapi.json status = %d, want %d", rec.Code, http.StatusOK)
	}

	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
		Paths map[string]map[string]struct {
			OperationID string `json:"operationId"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("parsing OpenAPI document: %v", err)
	}

	if doc.Info.Title != "RankStamp API" {
		t.Errorf("info.title = %q, want %q", doc.Info.Title, "RankStamp API")
	}

	want := []struct {
		path, method, opID string
	}{
		{"/health", "get", "get-health"},
		{"/v1/lists", "get", "list-lists"},
		{"/v1/lists", "post", "create-list"},
		{"/v1/lists/{listID}", "get", "get-list"},
		{"/v1/lists/{listID}", "delete", "delete-list"},
		{"/v1/lists/{listID}/items", "get", "list-items"},
		{"/v1/lists/{listID}/items", "post", "create-item"},
		{"/v1/lists/{listID}/items/{itemID}", "get", "get-item"},
		{"/v1/lists/{listID}/items/{itemID}", "put", "update-item"},
		{"/v1/lists/{listID}/items/{itemID}", "delete", "delete-item"},
		{"/v1/lists/{listID}/items/{itemID}/move", "post", "move-item"},
		{"/v1/lists/{listID}/snapshots", "get", "list-snapshots"},
		{"/v1/lists/{listID}/snapshots", "post", "create-snapshot"},
		{"/v1/lists/{listID}/snapshots/{snapshotID}/restore", "post", "restore-snapshot"},
	}

	for _, w := range want {
		ops, ok := doc.Paths[w.path]
		if !ok {
			t.Errorf("path %s missing from OpenAPI document", w.path)
			continue
		}
		op, ok := ops[w.method]
		if !ok {
			t.Errorf("%s %s missing from OpenAPI document", w.method, w.path)
			continue
		}
		if op.OperationID != w.opID {
			t.Errorf("%s %s operationId = %q, want %q", w.method, w.path, op.OperationID, w.opID)
		}
	}
}
