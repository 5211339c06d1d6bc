package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meshlockr.org/internal/auth"
	"meshlockr.org/internal/logbook"
	"meshlockr.org/internal/stream"
)

type appendLogRequest struct {
	OrgID     string         `json:"org_id"`
	UserID    string         `json:"user_id"`
	UserEmail string         `json:"user_email,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listLogs(w, r)
	case http.MethodPost:
		a.appendLog(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	req, ok := a.logListRequest(w, r)
	if !ok {
		return
	}
	page, err := a.logs.List(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) appendLog(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	orgID, ok := a.resolveOrg(r, req.OrgID)
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if uid, ok := auth.UserIDFromContext(r.Context()); ok {
			userID = uid
		}
	}

	entry, err := a.logs.Append(r.Context(), logbook.LogEntry{
		OrgID:     orgID,
		UserID:    userID,
		UserEmail: strings.TrimSpace(req.UserEmail),
		Action:    strings.TrimSpace(req.Action),
		Metadata:  req.Metadata,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.LogEvent{
			ID:        entry.ID,
			OrgID:     entry.OrgID,
			UserID:    entry.UserID,
			Action:    entry.Action,
			CreatedAt: entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleLogExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	req, ok := a.logListRequest(w, r)
	if !ok {
		return
	}
	// Export walks the full filtered set, one page at a time.
	req.Page = 1
	req.Limit = 200

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meshlockr-logs.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"User ID", "Action", "Created At"})
	for {
		page, err := a.logs.List(r.Context(), req)
		if err != nil {
			// Headers already went out; stop the stream.
			cw.Flush()
			return
		}
		for _, e := range page.Logs {
			_ = cw.Write([]string{e.UserID, e.Action, e.CreatedAt.UTC().Format(time.RFC3339)})
		}
		if req.Page >= page.TotalPages {
			break
		}
		req.Page++
	}
	cw.Flush()
}

// logListRequest parses the shared query parameters of the list and export
// endpoints. Returns false after writing the error response.
func (a *API) logListRequest(w http.ResponseWriter, r *http.Request) (logbook.ListRequest, bool) {
	q := r.URL.Query()
	orgID, ok := a.resolveOrg(r, q.Get("org_id"))
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return logbook.ListRequest{}, false
	}

	req := logbook.ListRequest{
		OrgID:  orgID,
		UserID: strings.TrimSpace(q.Get("user_id")),
		Action: strings.TrimSpace(q.Get("action")),
		Date:   strings.TrimSpace(q.Get("date")),
	}
	var err error
	if req.Page, err = parseIntParam(q.Get("page"), "page"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return logbook.ListRequest{}, false
	}
	if req.Limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return logbook.ListRequest{}, false
	}
	return req, true
}

func parseIntParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name}
	}
	return v, nil
}

type paramError struct{ name string }

func (e *paramError) Error() string { return e.name + " must be an integer" }

// StreamLogs pushes tenant-scoped log events over Server-Sent Events.
func (a *API) StreamLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.stream == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	orgID, ok := a.resolveOrg(r, r.URL.Query().Get("org_id"))
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		if orgID != "" && event.OrgID != orgID {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
