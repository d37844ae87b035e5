package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
	"durga.org/internal/obs"
	"durga.org/internal/summary"
)

const (
	serviceName     = "durga-api"
	defaultPageSize = 20
	maxPageSize     = 100
	defaultMaxBody  = 1 << 20
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// API is the HTTP layer over directory.Service and summary.Builder.
type API struct {
	svc     *directory.Service
	views   *summary.Builder
	issuer  *auth.Issuer
	authn   *auth.Authenticator
	ready   ReadyProbe
	log     *zap.Logger
	version string
	origins []string
	maxBody int64
	limiter *rateLimiter
}

type Option func(*API)

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithAuthenticator enables POST /v1/auth/token and password management.
func WithAuthenticator(authn *auth.Authenticator) Option {
	return func(a *API) { a.authn = authn }
}

// WithReadyProbe overrides the readiness check, which defaults to the service's store.
func WithReadyProbe(p ReadyProbe) Option {
	return func(a *API) {
		if p != nil {
			a.ready = p
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.origins = origins }
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithRateLimit enables per-client token buckets. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		if rps > 0 {
			a.limiter = newRateLimiter(rps, burst)
		}
	}
}

func New(svc *directory.Service, views *summary.Builder, issuer *auth.Issuer, opts ...Option) (*API, error) {
	if svc == nil || views == nil {
		return nil, errors.New("httpapi: service and views are required")
	}
	if issuer == nil {
		return nil, errors.New("httpapi: token issuer is required")
	}
	a := &API{
		svc:     svc,
		views:   views,
		issuer:  issuer,
		ready:   svc,
		log:     zap.NewNop(),
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, a.withRequestID, middleware.Recoverer, obs.Instrument, a.logging,
		SecurityHeaders, CORS(a.origins), MaxBodyBytes(a.maxBody))
	if a.limiter != nil {
		r.Use(a.limiter.middleware)
	}

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Post("/auth/token", a.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/identities", a.listIdentities)
			r.Get("/identities/{id}", a.getIdentity)
			r.Get("/identities/{id}/roles", a.identityRoles)
			r.Get("/identities/{id}/grants", a.identityGrants)
			r.Get("/identities/{id}/teams", a.identityTeams)
			r.Put("/identities/{id}/password", a.setPassword)

			r.Get("/roles", a.listRoles)
			r.Get("/roles/{id}", a.getRole)
			r.Get("/roles/{id}/holders", a.roleHolders)

			r.Get("/teams", a.listTeams)
			r.Get("/teams/{id}", a.getTeam)
			r.Get("/teams/{id}/members", a.teamMembers)

			r.Get("/departments", a.listDepartments)
			r.Get("/departments/{id}", a.getDepartment)
			r.Get("/departments/{id}/teams", a.departmentTeams)

			r.Get("/reports/divergences", a.divergences)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(adminRole))

				r.Post("/identities", a.createIdentity)
				r.Patch("/identities/{id}", a.updateIdentity)
				r.Delete("/identities/{id}", a.deleteIdentity)
				r.Put("/identities/{id}/roles/{roleID}", a.grantRole)
				r.Delete("/identities/{id}/roles/{roleID}", a.revokeRole)

				r.Post("/roles", a.createRole)
				r.Patch("/roles/{id}", a.updateRole)
				r.Delete("/roles/{id}", a.deleteRole)

				r.Post("/teams", a.createTeam)
				r.Patch("/teams/{id}", a.updateTeam)
				r.Delete("/teams/{id}", a.deleteTeam)
				r.Put("/teams/{id}/members/{identityID}", a.joinTeam)
				r.Delete("/teams/{id}/members/{identityID}", a.leaveTeam)
				r.Put("/teams/{id}/leader", a.assignTeamLeader)
				r.Delete("/teams/{id}/leader", a.clearTeamLeader)
				r.Put("/teams/{id}/manager", a.assignTeamManager)
				r.Delete("/teams/{id}/manager", a.clearTeamManager)

				r.Post("/departments", a.createDepartment)
				r.Patch("/departments/{id}", a.updateDepartment)
				r.Delete("/departments/{id}", a.deleteDepartment)
				r.Put("/departments/{id}/manager", a.assignDepartmentManager)
				r.Delete("/departments/{id}/manager", a.clearDepartmentManager)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.svc.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

// handleError maps directory and auth errors onto HTTP statuses.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrInactive):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, directory.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrNotImplemented):
		writeError(w, r, http.StatusNotImplemented, "credentials are not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request canceled")
	default:
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// pageFromQuery reads page and page_size. Sizes are clamped to [1, maxPageSize] and pages
// below 1 become 1; non-numeric values are rejected.
func pageFromQuery(r *http.Request) (directory.Page, error) {
	p := directory.Page{Number: 1, Size: defaultPageSize}
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New("page must be an integer")
		}
		p.Number = max(n, 1)
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.New("page_size must be an integer")
		}
		p.Size = min(max(n, 1), maxPageSize)
	}
	return p, nil
}

func boolQuery(r *http.Request, name string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, errors.New(name + " must be a boolean")
	}
	return &b, nil
}

func (a *API) created(w http.ResponseWriter, location string, v any) {
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusCreated, v)
}
