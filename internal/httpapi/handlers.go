package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/agenda"
	"casedesk.org/internal/blob"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/session"
	"casedesk.org/internal/stream"
	"casedesk.org/internal/workspace"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings every named dependency.
type ReadyProbe map[string]Pinger

func (rp ReadyProbe) Check(ctx context.Context) map[string]string {
	failed := map[string]string{}
	for name, p := range rp {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Deps are the components the HTTP layer serves.
type Deps struct {
	Workspace *workspace.Workspace
	Planner   *agenda.Planner
	Sessions  *session.Gateway
	Blobs     blob.Store
	Stream    *stream.Stream
	Ready     ReadyProbe
	Logger    *zap.Logger
}

// Options tune the middleware chain.
type Options struct {
	Version        string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	RateBurst      int
	RatePerSecond  float64
	AllowedOrigins []string
	// WaitTimeout bounds ?wait=true requests.
	WaitTimeout time.Duration
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Second
	}
	a := &API{
		mux:  http.NewServeMux(),
		deps: deps,
		opts: opts,
		log:  obs.OrNop(deps.Logger),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	m := a.mux

	m.HandleFunc("GET /healthz", a.Healthz)
	m.HandleFunc("GET /readyz", a.Ready)
	m.Handle("GET /metrics", obs.Handler())

	m.HandleFunc("POST /v1/auth/register", a.handleRegister)
	m.HandleFunc("POST /v1/auth/login", a.handleLogin)
	m.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	m.HandleFunc("GET /v1/auth/session", a.handleSession)

	m.HandleFunc("GET /v1/users", a.handleListUsers)
	m.HandleFunc("GET /v1/dashboard", a.handleDashboard)

	m.HandleFunc("GET /v1/contacts", a.handleListContacts)
	m.HandleFunc("POST /v1/contacts", a.handleCreateContact)

	m.HandleFunc("GET /v1/cases", a.handleListCases)
	m.HandleFunc("POST /v1/cases", a.handleCreateCase)
	m.HandleFunc("GET /v1/cases/{id}", a.handleGetCase)
	m.HandleFunc("GET /v1/cases/{id}/events", a.handleCaseEvents)
	m.HandleFunc("POST /v1/cases/{id}/documents", a.handleUploadDocument)
	m.HandleFunc("GET /v1/files/{key...}", a.handleDownload)

	m.HandleFunc("GET /v1/agenda", a.handleAgenda)
	m.HandleFunc("GET /v1/agenda/export", a.handleAgendaExport)

	m.HandleFunc("POST /v1/events", a.handleCreateEvent)
	m.HandleFunc("GET /v1/events/{id}", a.handleGetEvent)
	m.HandleFunc("PUT /v1/events/{id}", a.handleUpdateEvent)
	m.HandleFunc("DELETE /v1/events/{id}", a.handleDeleteEvent)
	m.HandleFunc("POST /v1/events/{id}/reschedule", a.handleReschedule)
	m.HandleFunc("POST /v1/events/{id}/toggle", a.handleToggle)
	m.HandleFunc("PUT /v1/events/{id}/case", a.handleLinkCase)
	m.HandleFunc("POST /v1/events/{id}/messages", a.handlePostMessage)

	m.HandleFunc("GET /v1/stream", a.Stream)
}

// Handler returns the mux wrapped in the middleware chain, outermost first:
// request id, metrics, logging, security headers, CORS, rate limit, auth.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = CORS(h, a.opts.AllowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(a.log)(h)
	h = obs.Instrument(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "casedesk-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if failed := a.deps.Ready.Check(ctx); len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
