// Package server implements the RankStamp HTTP server and its JSON API routes.
package server

import (
	"context"
	"net/http"

	"github.com/rankstamp/rankstamp/internal/archive"
	"github.com/rankstamp/rankstamp/internal/config"
	"github.com/rankstamp/rankstamp/internal/handlers"
	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/metrics"
	"github.com/rankstamp/rankstamp/stamp"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the RankStamp HTTP server. Routes are registered on a Chi
// router through Huma, which generates the OpenAPI description at
// /openapi.json and the reference UI at /docs.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	store      liststore.Store
	arch       archive.Backend
	gen        *stamp.Generator
	lists      *handlers.ListHandler
	items      *handlers.ItemHandler
	snapshots  *handlers.SnapshotHandler
	httpServer *http.Server
}

// CheckResult is one backend's health probe outcome.
type CheckResult struct {
	Status string `json:"status" example:"ok" doc:"Probe outcome"`
	Error  string `json:"error,omitempty" doc:"Failure detail"`
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string                 `json:"status" example:"ok" doc:"Health status"`
	Checks map[string]CheckResult `json:"checks,omitempty" doc:"Per-backend health"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithStore sets the list store backing the server.
func WithStore(store liststore.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithArchive sets the snapshot archive. Without one, snapshot
// operations answer 501.
func WithArchive(arch archive.Backend) ServerOption {
	return func(s *Server) {
		s.arch = arch
	}
}

// WithGenerator sets the stamp generator, letting callers inject a
// deterministic time or randomness source.
func WithGenerator(gen *stamp.Generator) ServerOption {
	return func(s *Server) {
		s.gen = gen
	}
}

// New creates a Server with the given configuration and registers every
// route. With no options it runs on an in-memory store with no archive,
// which is what the tests use.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("RankStamp API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = liststore.NewMemoryStore()
	}
	if s.gen == nil {
		s.gen = stamp.New()
	}

	s.lists = handlers.NewListHandler(s.store)
	s.items = handlers.NewItemHandler(s.store, s.gen,
		cfg.Server.MaxPayloadBytes, cfg.Server.DefaultPageSize, cfg.Server.MaxPageSize)
	s.snapshots = handlers.NewSnapshotHandler(s.store, s.arch)

	s.registerRoutes()
	return s, nil
}

// ListenAndServe starts the HTTP server on the given address.
// Middleware chain: metricsMiddleware -> commonHeaders -> bodyLimit -> router.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.handler(),
	}
	return s.httpServer.ListenAndServe()
}

// handler assembles the middleware chain around the router.
func (s *Server) handler() http.Handler {
	var handler http.Handler = s.router
	// Item payloads are capped in the handlers; the body limit above that
	// guards the JSON envelope itself.
	handler = bodyLimit(handler, int64(s.cfg.Server.MaxPayloadBytes)+64*1024)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router. Huma routes
// double as the OpenAPI description; /metrics, /healthz, and /readyz are
// plain Chi routes outside the API surface.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the RankStamp server.",
		Tags:        []string{"System"},
	}, s.handleHealth)

	// HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	if s.cfg.Observability.HealthCheck {
		s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		s.router.Get("/readyz", s.handleReadyz)
	}

	if s.cfg.Observability.Metrics {
		metrics.Register()
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// Lists.
	huma.Register(s.api, huma.Operation{
		OperationID: "list-lists",
		Method:      http.MethodGet,
		Path:        "/v1/lists",
		Summary:     "List all lists",
		Tags:        []string{"Lists"},
	}, s.lists.ListLists)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-list",
		Method:        http.MethodPost,
		Path:          "/v1/lists",
		Summary:       "Create a list",
		Tags:          []string{"Lists"},
		DefaultStatus: http.StatusCreated,
	}, s.lists.CreateList)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-list",
		Method:      http.MethodGet,
		Path:        "/v1/lists/{listID}",
		Summary:     "Get a list with its item count",
		Tags:        []string{"Lists"},
	}, s.lists.GetList)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-list",
		Method:        http.MethodDelete,
		Path:          "/v1/lists/{listID}",
		Summary:       "Delete a list and its items",
		Tags:          []string{"Lists"},
		DefaultStatus: http.StatusNoContent,
	}, s.lists.DeleteList)

	// Items.
	huma.Register(s.api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/v1/lists/{listID}/items",
		Summary:     "List items in stamp order",
		Tags:        []string{"Items"},
	}, s.items.ListItems)

	// The body cap sits above the payload limit so oversized payloads
	// reach the handler and get a structured PayloadTooLarge error
	// instead of a generic 413.
	maxBody := int64(s.cfg.Server.MaxPayloadBytes) + 64*1024

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/v1/lists/{listID}/items",
		Summary:       "Create an item at a placement",
		Tags:          []string{"Items"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxBody,
	}, s.items.CreateItem)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/v1/lists/{listID}/items/{itemID}",
		Summary:     "Get an item",
		Tags:        []string{"Items"},
	}, s.items.GetItem)

	huma.Register(s.api, huma.Operation{
		OperationID:  "update-item",
		Method:       http.MethodPut,
		Path:         "/v1/lists/{listID}/items/{itemID}",
		Summary:      "Replace an item's payload",
		Tags:         []string{"Items"},
		MaxBodyBytes: maxBody,
	}, s.items.UpdateItem)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/v1/lists/{listID}/items/{itemID}",
		Summary:       "Delete an item",
		Tags:          []string{"Items"},
		DefaultStatus: http.StatusNoContent,
	}, s.items.DeleteItem)

	huma.Register(s.api, huma.Operation{
		OperationID: "move-item",
		Method:      http.MethodPost,
		Path:        "/v1/lists/{listID}/items/{itemID}/move",
		Summary:     "Move an item to a new placement",
		Description: "Restamps the item so it sorts at the requested placement. A single-row write; no other item changes.",
		Tags:        []string{"Items"},
	}, s.items.MoveItem)

	// Snapshots.
	huma.Register(s.api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/v1/lists/{listID}/snapshots",
		Summary:     "List snapshots of a list",
		Tags:        []string{"Snapshots"},
	}, s.snapshots.ListSnapshots)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-snapshot",
		Method:        http.MethodPost,
		Path:          "/v1/lists/{listID}/snapshots",
		Summary:       "Snapshot a list to the archive",
		Tags:          []string{"Snapshots"},
		DefaultStatus: http.StatusCreated,
	}, s.snapshots.CreateSnapshot)

	huma.Register(s.api, huma.Operation{
		OperationID: "restore-snapshot",
		Method:      http.MethodPost,
		Path:        "/v1/lists/{listID}/snapshots/{snapshotID}/restore",
		Summary:     "Restore a list from a snapshot",
		Tags:        []string{"Snapshots"},
	}, s.snapshots.RestoreSnapshot)
}

// handleHealth answers /health. With health checks enabled it pings the
// backends and reports each probe; a failed probe degrades the status
// without failing the request, so load balancers keep getting a 200 and
// operators see what broke.
func (s *Server) handleHealth(ctx context.Context, input *struct{}) (*HealthOutput, error) {
	body := HealthBody{Status: "ok"}

	if s.cfg.Observability.HealthCheck {
		body.Checks = map[string]CheckResult{}

		check := CheckResult{Status: "ok"}
		if err := s.store.Ping(ctx); err != nil {
			check = CheckResult{Status: "error", Error: err.Error()}
			body.Status = "degraded"
		}
		body.Checks["store"] = check

		if s.arch != nil {
			check = CheckResult{Status: "ok"}
			if err := s.arch.HealthCheck(ctx); err != nil {
				check = CheckResult{Status: "error", Error: err.Error()}
				body.Status = "degraded"
			}
			body.Checks["archive"] = check
		}
	}

	return &HealthOutput{Body: body}, nil
}

// handleReadyz answers /readyz with an empty 200 when every backend is
// reachable and a 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if s.arch != nil {
		if err := s.arch.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
