// Package httpapi exposes the back-office services over a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/coopfund/backoffice/internal/app"
	"github.com/coopfund/backoffice/internal/app/domain/user"
	"github.com/coopfund/backoffice/internal/app/metrics"
	"github.com/coopfund/backoffice/internal/httputil"
	"github.com/coopfund/backoffice/internal/middleware"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Options configures the API surface around the application.
type Options struct {
	Tokens      *middleware.TokenService
	CORSOrigins []string
	LoginRate   float64
	LoginBurst  int
	APIRate     float64
	APIBurst    int
	Audit       *AuditLog
	// MaxUploadBytes bounds multipart bodies. Zero means 32 MiB.
	MaxUploadBytes int64
	// UploadDir is reported in the system status disk usage.
	UploadDir string
	// Ready reports whether the backing database is reachable.
	Ready func(ctx context.Context) error
	// Done stops the rate limiter cleanup. Nil disables cleanup.
	Done <-chan struct{}
}

type handler struct {
	app   *app.Application
	opts  Options
	audit *AuditLog
	log   *logger.Logger
	now   func() time.Time
}

// NewHandler builds the router. Requests pass tracing and CORS, then route
// metrics, then rate limiting, authentication and the audit log. Viewer write
// protection and admin checks are applied per route.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("http")
	}
	if opts.Audit == nil {
		opts.Audit = NewAuditLog(0, nil)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	h := &handler{app: application, opts: opts, audit: opts.Audit, log: log, now: func() time.Time { return time.Now().UTC() }}

	root := mux.NewRouter()
	root.Use(metrics.InstrumentHandler)
	root.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := root.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(notFound)

	loginLimiter := middleware.NewRateLimiter(orDefault(opts.LoginRate, 1), orDefaultInt(opts.LoginBurst, 5), false, log.Component("ratelimit"))
	api.Handle("/auth/login", loginLimiter.Handler(http.HandlerFunc(h.login))).Methods(http.MethodPost)

	apiLimiter := middleware.NewRateLimiter(orDefault(opts.APIRate, 20), orDefaultInt(opts.APIBurst, 40), true, log.Component("ratelimit"))
	if opts.Done != nil {
		loginLimiter.StartCleanup(10*time.Minute, opts.Done)
		apiLimiter.StartCleanup(10*time.Minute, opts.Done)
	}
	auth := middleware.NewAuthMiddleware(opts.Tokens, log.Component("auth"), nil)
	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Handler, apiLimiter.Handler, h.audit.Middleware)
	h.routes(protected)

	cors := middleware.NewCORSMiddleware(opts.CORSOrigins)
	tracing := middleware.NewTracingMiddleware(log.Component("http"))
	return tracing.Handler(cors.Handler(root))
}

func (h *handler) routes(r *mux.Router) {
	admin := middleware.RequireRole(user.RoleAdmin)
	handle := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, middleware.ReadOnlyViewers(fn)).Methods(methods...)
	}
	adminOnly := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, admin(fn)).Methods(methods...)
	}
	// Viewers may still manage their own inbox and password.
	self := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, fn).Methods(methods...)
	}

	self("/auth/me", h.me, http.MethodGet)

	handle("/cooperatives", h.listCooperatives, http.MethodGet)
	handle("/cooperatives", h.createCooperative, http.MethodPost)
	handle("/cooperatives/{id}", h.getCooperative, http.MethodGet)
	handle("/cooperatives/{id}", h.updateCooperative, http.MethodPut)
	adminOnly("/cooperatives/{id}", h.deleteCooperative, http.MethodDelete)
	handle("/cooperatives/{id}/archive", h.archiveCooperative, http.MethodPost)
	handle("/cooperatives/{id}/restore", h.restoreCooperative, http.MethodPost)
	handle("/cooperatives/{id}/children", h.listChildren, http.MethodGet)
	handle("/cooperatives/{id}/members", h.listMembers, http.MethodGet)
	handle("/cooperatives/{id}/members", h.addMember, http.MethodPost)
	handle("/members/{id}", h.updateMember, http.MethodPut)
	handle("/members/{id}", h.removeMember, http.MethodDelete)

	handle("/programs", h.listPrograms, http.MethodGet)
	adminOnly("/programs", h.createProgram, http.MethodPost)
	handle("/programs/{id}", h.getProgram, http.MethodGet)
	adminOnly("/programs/{id}", h.updateProgram, http.MethodPut)
	adminOnly("/programs/{id}", h.deleteProgram, http.MethodDelete)
	adminOnly("/programs/{id}/activate", h.activateProgram, http.MethodPost)
	adminOnly("/programs/{id}/deactivate", h.deactivateProgram, http.MethodPost)
	handle("/programs/{id}/checklists", h.listChecklists, http.MethodGet)
	adminOnly("/programs/{id}/checklists", h.createChecklist, http.MethodPost)
	handle("/checklists/{id}", h.getChecklist, http.MethodGet)
	adminOnly("/checklists/{id}", h.updateChecklist, http.MethodPut)
	adminOnly("/checklists/{id}", h.deleteChecklist, http.MethodDelete)

	handle("/coop-programs", h.listCoopPrograms, http.MethodGet)
	handle("/coop-programs", h.enroll, http.MethodPost)
	handle("/coop-programs/{id}", h.getCoopProgram, http.MethodGet)
	handle("/coop-programs/{id}", h.updateCoopProgram, http.MethodPut)
	adminOnly("/coop-programs/{id}", h.deleteCoopProgram, http.MethodDelete)
	adminOnly("/coop-programs/{id}/approve", h.approve, http.MethodPost)
	adminOnly("/coop-programs/{id}/release", h.release, http.MethodPost)
	handle("/coop-programs/{id}/cancel", h.cancel, http.MethodPost)
	handle("/coop-programs/{id}/archive", h.archiveCoopProgram, http.MethodPost)
	handle("/coop-programs/{id}/uploads", h.listUploads, http.MethodGet)
	handle("/coop-programs/{id}/uploads", h.upload, http.MethodPost)
	handle("/coop-programs/{id}/completion", h.completion, http.MethodGet)
	handle("/coop-programs/{id}/amortization", h.schedule, http.MethodGet)
	handle("/coop-programs/{id}/amortization.csv", h.amortizationCSV, http.MethodGet)
	handle("/coop-programs/{id}/payments", h.recordPayment, http.MethodPost)
	handle("/uploads/{id}", h.downloadUpload, http.MethodGet)
	handle("/uploads/{id}", h.removeUpload, http.MethodDelete)

	self("/notifications", h.listNotifications, http.MethodGet)
	self("/notifications/read-all", h.markAllRead, http.MethodPost)
	self("/notifications/{id}/read", h.markRead, http.MethodPost)
	self("/notifications/{id}", h.deleteNotification, http.MethodDelete)

	adminOnly("/users", h.listUsers, http.MethodGet)
	adminOnly("/users", h.createUser, http.MethodPost)
	adminOnly("/users/{id}", h.getUser, http.MethodGet)
	adminOnly("/users/{id}", h.updateUser, http.MethodPut)
	adminOnly("/users/{id}", h.deleteUser, http.MethodDelete)
	self("/users/{id}/password", h.setPassword, http.MethodPost)

	handle("/dashboard", h.dashboard, http.MethodGet)
	handle("/sync/status", h.syncStatus, http.MethodGet)
	adminOnly("/sync/trigger", h.triggerSync, http.MethodPost)
	handle("/jobs", h.listJobs, http.MethodGet)
	adminOnly("/jobs/{name}/run", h.runJob, http.MethodPost)
	adminOnly("/audit", h.listAudit, http.MethodGet)
	adminOnly("/system/status", h.systemStatus, http.MethodGet)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorResponse(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
