package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/audit"
	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/obs"
	"grantdesk.org/internal/plugin"
)

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. All agency endpoints sit under /api and require
// a bearer token; onboarding and oauth callback endpoints are public.
type API struct {
	mux        *http.ServeMux
	store      access.Store
	catalog    *catalog.Catalog
	plugins    *plugin.Registry
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

func New(store access.Store, cat *catalog.Catalog, plugins *plugin.Registry, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		store:      store,
		catalog:    cat,
		plugins:    plugins,
		readyProbe: rp,
		version:    version,
		rateBurst:  50,
		ratePerSec: 25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/api/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/api/auth/token", a.handleAuthToken)

	// catalog
	a.mux.HandleFunc("/api/platforms", a.handlePlatformsCollection)
	a.mux.HandleFunc("/api/platforms/", a.handlePlatformResource)

	// clients
	a.mux.HandleFunc("/api/clients", a.handleClientsCollection)
	a.mux.HandleFunc("/api/clients/", a.handleClientResource)

	// agency platforms and their items
	a.mux.HandleFunc("/api/agency/platforms", a.handleAgencyPlatformsCollection)
	a.mux.HandleFunc("/api/agency/platforms/", a.handleAgencyPlatformResource)

	// access requests
	a.mux.HandleFunc("/api/access-requests", a.handleRequestsCollection)
	a.mux.HandleFunc("/api/access-requests/", a.handleRequestResource)

	// client onboarding (token-addressed, public)
	a.mux.HandleFunc("/api/onboarding/", a.handleOnboarding)

	// integration identities
	a.mux.HandleFunc("/api/integration-identities", a.handleIdentitiesCollection)
	a.mux.HandleFunc("/api/integration-identities/", a.handleIdentityResource)

	// PAM checkout/checkin
	a.mux.HandleFunc("/api/pam/checkout", a.handlePamCheckout)
	a.mux.HandleFunc("/api/pam/checkin", a.handlePamCheckin)

	// OAuth callbacks from platforms
	a.mux.HandleFunc("/api/oauth/", a.handleOAuthCallback)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "grantdesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "grantdesk-api",
		"time":      time.Now().UTC().Format(time.RFC3339),
		"version":   a.version,
		"platforms": a.catalog.Len(),
		"plugins":   a.plugins.Keys(),
	})
}

func (a *API) audit(ctx context.Context, event, resourceType, resourceID string, details map[string]string) {
	fields := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range details {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
	_ = a.store.AppendAudit(ctx, access.AuditEntry{
		Event:        event,
		Actor:        actorFromContext(ctx),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps a payload in the response envelope.
func writeData(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, map[string]any{
		"success": true,
		"data":    v,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrors(w, r, code, msg, nil)
}

func writeErrors(w http.ResponseWriter, r *http.Request, code int, msg string, violations []string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if len(violations) > 0 {
		payload["errors"] = violations
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
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

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrConflict), errors.Is(err, access.ErrValidated):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, access.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// shiftPath splits "a/b/c" into "a" and "b/c".
func shiftPath(p string) (head, rest string) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", ""
	}
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}
