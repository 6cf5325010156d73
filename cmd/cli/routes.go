package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/petnica-meteor-group/meteornet-server/pkg/config"
	"github.com/petnica-meteor-group/meteornet-server/pkg/ingest"
	"github.com/petnica-meteor-group/meteornet-server/pkg/metrics"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/rules"
	"github.com/petnica-meteor-group/meteornet-server/pkg/status"
)

// UserStore authenticates operators
type UserStore interface {
	ValidateUser(ctx context.Context, username, password string) (*models.User, error)
}

// HealthReporter reports the database connection state
type HealthReporter interface {
	IsConnectionHealthy() bool
}

// RouteDeps are the services the HTTP layer serves
type RouteDeps struct {
	Repo    repository.Repository
	Table   models.StatusTable
	Engine  *ingest.Engine
	Status  *status.Service
	Rules   *rules.Service
	Users   UserStore
	Health  HealthReporter
	Metrics *metrics.Metrics
	Server  config.ServerConfig
	// Recency bounds current values, History the charted batches
	Recency time.Duration
	History time.Duration
}

// RouteManager handles all API routes
type RouteManager struct {
	RouteDeps
	logger  zerolog.Logger
	limiter *rate.Limiter
	now     func() time.Time
	Router  *mux.Router
}

// NewRouteManager creates a new RouteManager instance
func NewRouteManager(deps RouteDeps, logger zerolog.Logger) *RouteManager {
	return &RouteManager{
		RouteDeps: deps,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(deps.Server.IngestRate), deps.Server.IngestBurst),
		now:       time.Now,
		Router:    mux.NewRouter(),
	}
}

// Setup configures all routes
func (rm *RouteManager) Setup() {
	r := rm.Router
	r.Use(rm.loggingMiddleware)
	r.Use(rm.corsMiddleware)

	// Global OPTIONS handler - catches all preflight requests
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/health", rm.healthHandler).Methods("GET")
	if rm.Metrics != nil {
		r.Handle("/metrics", rm.Metrics.Handler()).Methods("GET")
	}

	// Station endpoints
	r.Handle("/station_register", rm.rateLimitMiddleware(http.HandlerFunc(rm.stationRegisterHandler))).Methods("POST")
	r.Handle("/station_data", rm.rateLimitMiddleware(http.HandlerFunc(rm.stationDataHandler))).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	rm.setupAPIRoutes(api)
}

// setupAPIRoutes configures all API v1 routes
func (rm *RouteManager) setupAPIRoutes(api *mux.Router) {
	// Public endpoints
	api.HandleFunc("/auth/login", rm.handleLogin).Methods("POST")
	api.HandleFunc("/stations", rm.getStationsHandler).Methods("GET")
	api.HandleFunc("/stations/{network_id}", rm.getStationHandler).Methods("GET")

	// Protected endpoints (auth required)
	protected := api.PathPrefix("/admin").Subrouter()
	protected.Use(rm.JWTAuthMiddleware)

	protected.HandleFunc("/me", rm.handleMe).Methods("GET")
	protected.HandleFunc("/refresh", rm.handleRefreshToken).Methods("POST")

	protected.HandleFunc("/registrations", rm.getRegistrationsHandler).Methods("GET")
	protected.HandleFunc("/stations/{network_id}", rm.getAnyStationHandler).Methods("GET")
	protected.HandleFunc("/stations/{network_id}/approve", rm.approveStationHandler).Methods("POST")
	protected.HandleFunc("/stations/{network_id}/reject", rm.rejectStationHandler).Methods("POST")
	protected.HandleFunc("/stations/{network_id}", rm.deleteStationHandler).Methods("DELETE")
	protected.HandleFunc("/errors/{id}", rm.resolveErrorHandler).Methods("DELETE")

	protected.HandleFunc("/rules", rm.listRulesHandler).Methods("GET")
	protected.HandleFunc("/rules", rm.addRuleHandler).Methods("POST")
	protected.HandleFunc("/rules/{id}", rm.deleteRuleHandler).Methods("DELETE")
}
