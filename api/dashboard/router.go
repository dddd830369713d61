// Package dashboard exposes the forecast dashboard over HTTP as JSON.
package dashboard

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	coredash "github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/infra/audit"
)

// Service is the dashboard pipeline as seen by the HTTP layer.
type Service interface {
	Refresh(ctx context.Context, req coredash.Request) (coredash.Snapshot, error)
	Heatmap(ctx context.Context) coredash.HeatmapSnapshot
	ReloadModel(ctx context.Context, atmID string) error
}

// AuditQuerier reads the verdict audit trail.
type AuditQuerier interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Record, error)
}

// Options configures optional routes.
type Options struct {
	// Token guards mutating and audit routes with "Bearer <token>" when set.
	Token string
	// Audit enables GET /api/audit.
	Audit AuditQuerier
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

// NewRouter registers every dashboard route.
func NewRouter(svc Service, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/forecast", NewForecastHandler(svc)).Methods(http.MethodGet)
	api.Handle("/atms/{atm_id}/forecast", NewForecastHandler(svc)).Methods(http.MethodGet)
	api.Handle("/heatmap", NewHeatmapHandler(svc)).Methods(http.MethodGet)
	api.Handle("/models/{atm_id}/reload", requireToken(opts.Token, NewReloadHandler(svc))).Methods(http.MethodPost)
	if opts.Audit != nil {
		api.Handle("/audit", requireToken(opts.Token, NewAuditHandler(opts.Audit))).Methods(http.MethodGet)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

// Wrap adds panic recovery, CORS for the listed origins and an access log
// written to accessLog.
func Wrap(h http.Handler, accessLog io.Writer, origins []string) http.Handler {
	if len(origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	h = handlers.CombinedLoggingHandler(accessLog, h)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
