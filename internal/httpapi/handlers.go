// Package httpapi is the HTTP surface of the admin console: policy CRUD,
// paged audit logs with live updates, invite links, and the usual
// health/metrics endpoints.
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

	"meshlockr.org/internal/invite"
	"meshlockr.org/internal/logbook"
	"meshlockr.org/internal/obs"
	"meshlockr.org/internal/policy"
	"meshlockr.org/internal/stream"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. It owns no business rules; everything delegates to
// the injected services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	policies policy.Service
	logs     logbook.Service
	invites  invite.Service
	stream   *stream.Stream

	joinBaseURL string
	rateBurst   int
	ratePerSec  int
}

func New(rp ReadyProbe, version string, policies policy.Service, logs logbook.Service, invites invite.Service, st *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		policies:   policies,
		logs:       logs,
		invites:    invites,
		stream:     st,
		rateBurst:  50,
		ratePerSec: 25,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/policies", a.handlePolicies)

	a.mux.HandleFunc("/v1/logs", a.handleLogs)
	a.mux.HandleFunc("/v1/logs/export", a.handleLogExport)
	a.mux.HandleFunc("/v1/logs/stream", a.StreamLogs)

	a.mux.HandleFunc("/v1/invites", a.handleInvites)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetJoinBaseURL sets the public prefix used to build invite join links.
func (a *API) SetJoinBaseURL(base string) {
	a.joinBaseURL = strings.TrimRight(base, "/")
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "meshlockr-api",
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
		"name":    "meshlockr-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
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

// handleServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised stays a 500 without leaking internals.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, policy.ErrCountryRequired),
		errors.Is(err, policy.ErrOrgRequired),
		errors.Is(err, policy.ErrIDRequired),
		errors.Is(err, logbook.ErrOrgRequired),
		errors.Is(err, logbook.ErrUserRequired),
		errors.Is(err, logbook.ErrActionRequired),
		errors.Is(err, invite.ErrOrgRequired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrNotFound), errors.Is(err, invite.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
