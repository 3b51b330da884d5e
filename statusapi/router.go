// Package statusapi is the read-only operator HTTP surface described in
// SPEC_FULL §4.5 and §6: a health check, a live launcher snapshot, and
// recent LaunchRegistry history. It holds no authority over the core; it
// only reads state the Launcher Framework and EngineKernel already
// maintain.
package statusapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/corvus-labs/clusterkit/registry"
)

// Dependencies groups everything the router and its handlers need, so
// adding a dependency later means adding one field here, not touching
// every call site.
type Dependencies struct {
	Logger   *slog.Logger
	Tracker  *Tracker
	Registry *registry.Registry
}

// NewRouter constructs the chi multiplexer, attaches middleware, wires
// handlers with their dependencies, and wraps the whole thing in an
// otelhttp handler so every request produces a trace span without each
// handler needing to know about tracing.
func NewRouter(deps Dependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)

	healthHandler := NewHealthHandler()
	launchersHandler := NewLaunchersHandler(deps.Tracker, deps.Registry, deps.Logger)

	router.Get("/healthz", healthHandler.Health)
	router.Get("/launchers", launchersHandler.List)
	router.Get("/launchers/history", launchersHandler.History)

	return otelhttp.NewHandler(router, "statusapi")
}
