// Package server contains integration tests that start a full in-process
// RankStamp server and run HTTP requests against it.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rankstamp/rankstamp/internal/archive"
	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/internal/liststore"
)

// integrationServer is a helper struct that holds a running test server instance.
type integrationServer struct {
	srv      *Server
	addr     string
	endpoint string
	tmpDir   string
	store    *liststore.SQLiteStore
}

// newIntegrationServer creates and starts a full RankStamp server with a
// SQLite store and a local archive under temporary directories.
func newIntegrationServer(t *testing.T) *integrationServer {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "rankstamp.db")
	archiveDir := filepath.Join(tmpDir, "snapshots")

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: 5,
			MaxPayloadBytes: 1 << 20,
			DefaultPageSize: 100,
			MaxPageSize:     1000,
		},
		Store: config.StoreConfig{
			Engine: "sqlite",
			SQLite: config.SQLiteConfig{Path: dbPath},
		},
		Archive: config.ArchiveConfig{
			Backend: "local",
			Local:   config.LocalArchiveConfig{RootDir: archiveDir},
		},
		Observability: config.ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}

	store, err := liststore.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("creating sqlite store: %v", err)
	}

	arch, err := archive.NewLocalBackend(archiveDir)
	if err != nil {
		t.Fatalf("creating local archive: %v", err)
	}

	srv, err := New(cfg, WithStore(store), WithArchive(arch))
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	// Start the server in a goroutine
	go func() {
		srv.ListenAndServe(addr)
	}()

	// Wait for the server to be ready
	endpoint := "http://" + addr
	for i := 0; i < 50; i++ {
		resp, err := http.Get(endpoint + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		store.Close()
	})

	return &integrationServer{
		srv:      srv,
		addr:     addr,
		endpoint: endpoint,
		tmpDir:   tmpDir,
		store:    store,
	}
}

// doJSON executes a request with an optional JSON body against the test server.
func (ts *integrationServer) doJSON(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.endpoint+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("executing request %s %s: %v", method, path, err)
	}
	return resp
}

// doRaw executes a request with a raw byte body, for malformed payloads.
func (ts *integrationServer) doRaw(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.endpoint+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("executing request %s %s: %v", method, path, err)
	}
	return resp
}

func intReadBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return string(data)
}

// intDecode unmarshals the response body into v and closes the body.
func intDecode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshaling response body %q: %v", data, err)
	}
}

// createList creates a list and fails the test if the server refuses.
func (ts *integrationServer) createList(t *testing.T, id string) {
	t.Helper()
	resp := ts.doJSON(t, "POST", "/v1/lists", map[string]string{"id": id})
	if resp.StatusCode != 201 {
		t.Fatalf("CreateList %s status = %d, want 201: %s", id, resp.StatusCode, intReadBody(resp))
	}
	resp.Body.Close()
}

// createItem creates an item with the given placement body fields.
func (ts *integrationServer) createItem(t *testing.T, listID, itemID string, body map[string]interface{}) {
	t.Helper()
	if body == nil {
		body = map[string]interface{}{}
	}
	body["id"] = itemID
	resp := ts.doJSON(t, "POST", "/v1/lists/"+listID+"/items", body)
	if resp.StatusCode != 201 {
		t.Fatalf("CreateItem %s/%s status = %d, want 201: %s", listID, itemID, resp.StatusCode, intReadBody(resp))
	}
	resp.Body.Close()
}

type intItem struct {
	ID        string          `json:"id"`
	Stamp     string          `json:"stamp"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type intItemPage struct {
	Items       []intItem `json:"items"`
	IsTruncated bool      `json:"is_truncated"`
	NextAfter   string    `json:"next_after"`
}

// listOrder fetches a list's items and returns their IDs, asserting that
// the hex stamps are strictly increasing.
func (ts *integrationServer) listOrder(t *testing.T, listID string) []string {
	t.Helper()
	resp := ts.doJSON(t, "GET", "/v1/lists/"+listID+"/items", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("ListItems %s status = %d, want 200: %s", listID, resp.StatusCode, intReadBody(resp))
	}
	var page intItemPage
	intDecode(t, resp, &page)

	ids := make([]string, 0, len(page.Items))
	for i, it := range page.Items {
		if i > 0 && page.Items[i-1].Stamp >= it.Stamp {
			t.Errorf("stamps not increasing at %d: %s >= %s", i, page.Items[i-1].Stamp, it.Stamp)
		}
		ids = append(ids, it.ID)
	}
	return ids
}

// --- Integration Tests ---

func TestIntegrationHealth(t *testing.T) {
	ts := newIntegrationServer(t)
	resp, err := http.Get(ts.endpoint + "/health")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestIntegrationListCRUD(t *testing.T) {
	ts := newIntegrationServer(t)

	resp := ts.doJSON(t, "POST", "/v1/lists", map[string]string{"id": "crud-list", "title": "CRUD"})
	if resp.StatusCode != 201 {
		t.Fatalf("CreateList status = %d, want 201: %s", resp.StatusCode, intReadBody(resp))
	}
	var created struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		CreatedAt time.Time `json:"created_at"`
	}
	intDecode(t, resp, &created)
	if created.ID != "crud-list" || created.Title != "CRUD" {
		t.Errorf("CreateList body = %+v", created)
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreateList created_at is zero")
	}

	resp = ts.doJSON(t, "GET", "/v1/lists/crud-list", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("GetList status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var detail struct {
		ID        string `json:"id"`
		ItemCount int64  `json:"item_count"`
	}
	intDecode(t, resp, &detail)
	if detail.ID != "crud-list" || detail.ItemCount != 0 {
		t.Errorf("GetList body = %+v, want crud-list with 0 items", detail)
	}

	resp = ts.doJSON(t, "GET", "/v1/lists", nil)
	body := intReadBody(resp)
	if resp.StatusCode != 200 {
		t.Errorf("ListLists status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "crud-list") {
		t.Errorf("ListLists does not contain %q: %s", "crud-list", body)
	}

	resp = ts.doJSON(t, "DELETE", "/v1/lists/crud-list", nil)
	if resp.StatusCode != 204 {
		t.Errorf("DeleteList status = %d, want 204: %s", resp.StatusCode, intReadBody(resp))
	} else {
		resp.Body.Close()
	}

	resp = ts.doJSON(t, "GET", "/v1/lists/crud-list", nil)
	if resp.StatusCode != 404 {
		t.Errorf("GetList after delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIntegrationItemLifecycle(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "lifecycle")

	ts.createItem(t, "lifecycle", "alpha", nil)
	ts.createItem(t, "lifecycle", "beta", map[string]interface{}{
		"payload": map[string]int{"qty": 2},
	})
	ts.createItem(t, "lifecycle", "gamma", nil)

	if got := ts.listOrder(t, "lifecycle"); strings.Join(got, ",") != "alpha,beta,gamma" {
		t.Fatalf("order = %v, want [alpha beta gamma]", got)
	}

	resp := ts.doJSON(t, "GET", "/v1/lists/lifecycle/items/beta", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("GetItem status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var got intItem
	intDecode(t, resp, &got)
	if got.ID != "beta" {
		t.Errorf("GetItem id = %q, want beta", got.ID)
	}
	if !bytes.Contains(got.Payload, []byte(`"qty":2`)) {
		t.Errorf("GetItem payload = %s, want qty 2", got.Payload)
	}

	resp = ts.doJSON(t, "PUT", "/v1/lists/lifecycle/items/beta", map[string]interface{}{
		"payload": map[string]int{"qty": 5},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("UpdateItem status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var updated intItem
	intDecode(t, resp, &updated)
	if !bytes.Contains(updated.Payload, []byte(`"qty":5`)) {
		t.Errorf("UpdateItem payload = %s, want qty 5", updated.Payload)
	}
	if updated.Stamp != got.Stamp {
		t.Errorf("UpdateItem changed stamp %s -> %s; payload updates must not restamp", got.Stamp, updated.Stamp)
	}

	resp = ts.doJSON(t, "DELETE", "/v1/lists/lifecycle/items/alpha", nil)
	if resp.StatusCode != 204 {
		t.Errorf("DeleteItem status = %d, want 204: %s", resp.StatusCode, intReadBody(resp))
	} else {
		resp.Body.Close()
	}

	if got := ts.listOrder(t, "lifecycle"); strings.Join(got, ",") != "beta,gamma" {
		t.Fatalf("order after delete = %v, want [beta gamma]", got)
	}
}

func TestIntegrationPlacements(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "placements")

	ts.createItem(t, "placements", "b", nil)
	ts.createItem(t, "placements", "d", nil)
	ts.createItem(t, "placements", "a", map[string]interface{}{"position": "first"})
	ts.createItem(t, "placements", "c", map[string]interface{}{"after": "b", "before": "d"})
	ts.createItem(t, "placements", "e", map[string]interface{}{"position": "last"})

	if got := ts.listOrder(t, "placements"); strings.Join(got, ",") != "a,b,c,d,e" {
		t.Fatalf("order = %v, want [a b c d e]", got)
	}
}

func TestIntegrationMoveItem(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "moves")

	ts.createItem(t, "moves", "a", nil)
	ts.createItem(t, "moves", "b", nil)
	ts.createItem(t, "moves", "c", nil)

	resp := ts.doJSON(t, "POST", "/v1/lists/moves/items/c/move", map[string]interface{}{
		"position": "first",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("MoveItem status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var moved intItem
	intDecode(t, resp, &moved)
	if moved.ID != "c" {
		t.Errorf("MoveItem id = %q, want c", moved.ID)
	}

	if got := ts.listOrder(t, "moves"); strings.Join(got, ",") != "c,a,b" {
		t.Fatalf("order after move-first = %v, want [c a b]", got)
	}

	resp = ts.doJSON(t, "POST", "/v1/lists/moves/items/c/move", map[string]interface{}{
		"after": "a", "before": "b",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("MoveItem between status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	resp.Body.Close()

	if got := ts.listOrder(t, "moves"); strings.Join(got, ",") != "a,c,b" {
		t.Fatalf("order after move-between = %v, want [a c b]", got)
	}
}

func TestIntegrationPagination(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "pages")

	want := []string{"one", "two", "three", "four", "five"}
	for _, id := range want {
		ts.createItem(t, "pages", id, nil)
	}

	var got []string
	after := ""
	for i := 0; i < 10; i++ {
		path := "/v1/lists/pages/items?limit=2"
		if after != "" {
			path += "&after=" + after
		}
		resp := ts.doJSON(t, "GET", path, nil)
		if resp.StatusCode != 200 {
			t.Fatalf("ListItems page status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
		}
		var page intItemPage
		intDecode(t, resp, &page)
		for _, it := range page.Items {
			got = append(got, it.ID)
		}
		if !page.IsTruncated {
			break
		}
		if page.NextAfter == "" {
			t.Fatal("truncated page without next_after")
		}
		after = page.NextAfter
	}

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("paginated items = %v, want %v", got, want)
	}
}

func TestIntegrationSnapshotRestore(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "snap")

	ts.createItem(t, "snap", "milk", map[string]interface{}{"payload": map[string]int{"qty": 2}})
	ts.createItem(t, "snap", "eggs", nil)

	resp := ts.doJSON(t, "POST", "/v1/lists/snap/snapshots", nil)
	if resp.StatusCode != 201 {
		t.Fatalf("CreateSnapshot status = %d, want 201: %s", resp.StatusCode, intReadBody(resp))
	}
	var snap struct {
		ID        string `json:"id"`
		ListID    string `json:"list_id"`
		ItemCount int64  `json:"item_count"`
	}
	intDecode(t, resp, &snap)
	if snap.ID == "" || snap.ListID != "snap" || snap.ItemCount != 2 {
		t.Fatalf("CreateSnapshot body = %+v", snap)
	}

	// Drift the list away from the snapshot.
	ts.doJSON(t, "DELETE", "/v1/lists/snap/items/milk", nil).Body.Close()
	ts.createItem(t, "snap", "bread", nil)

	resp = ts.doJSON(t, "GET", "/v1/lists/snap/snapshots", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("ListSnapshots status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var snapList struct {
		ListID    string   `json:"list_id"`
		Snapshots []string `json:"snapshots"`
	}
	intDecode(t, resp, &snapList)
	if len(snapList.Snapshots) != 1 || snapList.Snapshots[0] != snap.ID {
		t.Fatalf("ListSnapshots = %+v, want [%s]", snapList, snap.ID)
	}

	resp = ts.doJSON(t, "POST", "/v1/lists/snap/snapshots/"+snap.ID+"/restore", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("RestoreSnapshot status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	var restored struct {
		SnapshotID    string   `json:"snapshot_id"`
		ItemsRestored int      `json:"items_restored"`
		Warnings      []string `json:"warnings"`
	}
	intDecode(t, resp, &restored)
	if restored.ItemsRestored != 2 {
		t.Errorf("items_restored = %d, want 2", restored.ItemsRestored)
	}
	if len(restored.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", restored.Warnings)
	}

	if got := ts.listOrder(t, "snap"); strings.Join(got, ",") != "milk,eggs" {
		t.Fatalf("order after restore = %v, want [milk eggs]", got)
	}
}

func TestIntegrationRestoreDeletedList(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "phoenix")
	ts.createItem(t, "phoenix", "only", nil)

	resp := ts.doJSON(t, "POST", "/v1/lists/phoenix/snapshots", nil)
	if resp.StatusCode != 201 {
		t.Fatalf("CreateSnapshot status = %d, want 201: %s", resp.StatusCode, intReadBody(resp))
	}
	var snap struct {
		ID string `json:"id"`
	}
	intDecode(t, resp, &snap)

	ts.doJSON(t, "DELETE", "/v1/lists/phoenix", nil).Body.Close()

	resp = ts.doJSON(t, "GET", "/v1/lists/phoenix", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("GetList after delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.doJSON(t, "POST", "/v1/lists/phoenix/snapshots/"+snap.ID+"/restore", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("RestoreSnapshot status = %d, want 200: %s", resp.StatusCode, intReadBody(resp))
	}
	resp.Body.Close()

	if got := ts.listOrder(t, "phoenix"); strings.Join(got, ",") != "only" {
		t.Fatalf("order after restore = %v, want [only]", got)
	}
}

func TestIntegrationCommonHeaders(t *testing.T) {
	ts := newIntegrationServer(t)

	resp := ts.doJSON(t, "GET", "/v1/lists", nil)
	resp.Body.Close()

	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("Missing X-Request-Id header")
	}
	if resp.Header.Get("Server") != "RankStamp" {
		t.Errorf("Server header = %q, want RankStamp", resp.Header.Get("Server"))
	}
	if resp.Header.Get("Date") == "" {
		t.Error("Missing Date header")
	}
}

func TestIntegrationErrorResponses(t *testing.T) {
	ts := newIntegrationServer(t)

	resp := ts.doJSON(t, "GET", "/v1/lists/nonexistent-list-xyz123", nil)
	body := intReadBody(resp)
	if resp.StatusCode != 404 {
		t.Errorf("ListNotFound status = %d, want 404: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "ListNotFound") {
		t.Errorf("Expected ListNotFound in response: %s", body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("Error response missing X-Request-Id header")
	}

	resp = ts.doJSON(t, "GET", "/v1/lists/nonexistent-list-xyz123/items/whatever", nil)
	body = intReadBody(resp)
	if resp.StatusCode != 404 {
		t.Errorf("ItemNotFound status = %d, want 404: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "ItemNotFound") {
		t.Errorf("Expected ItemNotFound in response: %s", body)
	}
}

func TestIntegrationListAlreadyExists(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "twice")

	resp := ts.doJSON(t, "POST", "/v1/lists", map[string]string{"id": "twice"})
	body := intReadBody(resp)
	if resp.StatusCode != 409 {
		t.Errorf("CreateList again status = %d, want 409: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "ListAlreadyExists") {
		t.Errorf("Expected ListAlreadyExists: %s", body)
	}
}

func TestIntegrationInvalidListID(t *testing.T) {
	ts := newIntegrationServer(t)

	resp := ts.doJSON(t, "POST", "/v1/lists", map[string]string{"id": "has.dot"})
	if resp.StatusCode != 400 {
		t.Errorf("Invalid list id (dot) status = %d, want 400: %s", resp.StatusCode, intReadBody(resp))
	} else {
		resp.Body.Close()
	}

	resp = ts.doJSON(t, "POST", "/v1/lists", map[string]string{"id": strings.Repeat("a", 129)})
	if resp.StatusCode != 400 {
		t.Errorf("Invalid list id (long) status = %d, want 400: %s", resp.StatusCode, intReadBody(resp))
	} else {
		resp.Body.Close()
	}
}

func TestIntegrationInvalidPlacement(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "badplace")
	ts.createItem(t, "badplace", "x", nil)

	resp := ts.doJSON(t, "POST", "/v1/lists/badplace/items", map[string]interface{}{
		"id": "y", "position": "first", "after": "x",
	})
	body := intReadBody(resp)
	if resp.StatusCode != 400 {
		t.Errorf("Conflicting placement status = %d, want 400: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "InvalidPlacement") {
		t.Errorf("Expected InvalidPlacement: %s", body)
	}

	resp = ts.doJSON(t, "POST", "/v1/lists/badplace/items/x/move", map[string]interface{}{
		"after": "x",
	})
	body = intReadBody(resp)
	if resp.StatusCode != 400 {
		t.Errorf("Self-anchor move status = %d, want 400: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "InvalidPlacement") {
		t.Errorf("Expected InvalidPlacement: %s", body)
	}
}

func TestIntegrationAnchorNotFound(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "anchors")

	resp := ts.doJSON(t, "POST", "/v1/lists/anchors/items", map[string]interface{}{
		"id": "x", "after": "ghost",
	})
	body := intReadBody(resp)
	if resp.StatusCode != 404 {
		t.Errorf("Missing anchor status = %d, want 404: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "ItemNotFound") {
		t.Errorf("Expected ItemNotFound: %s", body)
	}
}

func TestIntegrationPayloadTooLarge(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "bigpayload")

	resp := ts.doJSON(t, "POST", "/v1/lists/bigpayload/items", map[string]interface{}{
		"id":      "huge",
		"payload": strings.Repeat("a", 1<<20),
	})
	body := intReadBody(resp)
	if resp.StatusCode != 413 {
		t.Errorf("Oversized payload status = %d, want 413: %s", resp.StatusCode, body[:min(len(body), 200)])
	}
	if !strings.Contains(body, "PayloadTooLarge") {
		t.Errorf("Expected PayloadTooLarge: %s", body[:min(len(body), 200)])
	}
}

func TestIntegrationMalformedPayload(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "badjson")

	resp := ts.doRaw(t, "POST", "/v1/lists/badjson/items", []byte(`{"id": "x", "payload": {bad`))
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		t.Errorf("Malformed body status = %d, want 4xx: %s", resp.StatusCode, intReadBody(resp))
	} else {
		resp.Body.Close()
	}
}

func TestIntegrationMetricsAfterTraffic(t *testing.T) {
	ts := newIntegrationServer(t)
	ts.createList(t, "metered")
	ts.createItem(t, "metered", "one", nil)

	resp := ts.doJSON(t, "GET", "/metrics", nil)
	body := intReadBody(resp)
	if resp.StatusCode != 200 {
		t.Fatalf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
	for _, name := range []string{
		"rankstamp_http_requests_total",
		"rankstamp_stamps_minted_total",
		"rankstamp_operations_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
