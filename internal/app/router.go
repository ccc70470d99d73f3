package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/auth"
	"github.com/stocklane/stocklane/internal/masterdata"
	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/purchasing"
	"github.com/stocklane/stocklane/internal/rbac"
	"github.com/stocklane/stocklane/internal/requisition"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
	"github.com/stocklane/stocklane/internal/users"
	"github.com/stocklane/stocklane/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Pool           *pgxpool.Pool
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *rbac.RolesHandler
	PermissionsHandler *rbac.PermissionsHandler
	MasterData         masterdata.Handlers
	StockHandler       *stock.Handler
	RequisitionHandler *requisition.Handler
	PurchasingHandler  *purchasing.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r)
		})
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r)
		})
		r.Route("/roles", func(r chi.Router) {
			params.RolesHandler.MountRoutes(r)
		})
		r.Route("/permissions", func(r chi.Router) {
			params.PermissionsHandler.MountRoutes(r)
		})
		masterdata.MountRoutes(r, params.MasterData, params.RBACMiddleware)
		r.Route("/stock", func(r chi.Router) {
			params.StockHandler.MountRoutes(r)
		})
		r.Route("/requisitions", func(r chi.Router) {
			params.RequisitionHandler.MountRoutes(r)
		})
		r.Route("/purchasing", func(r chi.Router) {
			params.PurchasingHandler.MountRoutes(r)
		})
		r.Route("/audit", func(r chi.Router) {
			params.AuditHandler.MountRoutes(r)
		})
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
