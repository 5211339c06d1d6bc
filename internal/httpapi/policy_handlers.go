package httpapi

import (
	"context"
	"net/http"
	"strings"

	"meshlockr.org/internal/audit"
	"meshlockr.org/internal/auth"
	"meshlockr.org/internal/logbook"
	"meshlockr.org/internal/policy"
	"meshlockr.org/internal/stream"
)

type policyRequest struct {
	ID              string   `json:"id,omitempty"`
	OrgID           string   `json:"org_id"`
	AllowCountry    []string `json:"allow_country"`
	AllowState      []string `json:"allow_state,omitempty"`
	BlockTimeRanges []string `json:"block_time_ranges,omitempty"`
	RequireTrusted  bool     `json:"require_trusted_device"`
	CreatedBy       string   `json:"created_by,omitempty"`
}

type deleteRequest struct {
	ID string `json:"id"`
}

// Writes without an actor are attributed to this placeholder.
const anonymousActor = "unknown@meshlockr.dev"

func (a *API) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPolicies(w, r)
	case http.MethodPost:
		a.createPolicy(w, r)
	case http.MethodPut:
		a.updatePolicy(w, r)
	case http.MethodDelete:
		a.deletePolicy(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listPolicies(w http.ResponseWriter, r *http.Request) {
	orgID, ok := a.resolveOrg(r, r.URL.Query().Get("org_id"))
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}

	list, err := a.policies.List(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []policy.AccessPolicy{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	orgID, ok := a.resolveOrg(r, req.OrgID)
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}
	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		if uid, ok := auth.UserIDFromContext(r.Context()); ok {
			createdBy = uid
		} else {
			createdBy = anonymousActor
		}
	}

	p, err := a.policies.Create(r.Context(), orgID, policy.Payload{
		AllowCountry:    req.AllowCountry,
		AllowState:      req.AllowState,
		BlockTimeRanges: req.BlockTimeRanges,
		RequireTrusted:  req.RequireTrusted,
		CreatedBy:       createdBy,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.recordAction(r.Context(), orgID, "policy_created", map[string]any{"policy_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, http.StatusBadRequest, policy.ErrIDRequired.Error())
		return
	}
	orgID, ok := a.resolveOrg(r, req.OrgID)
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}

	p, err := a.policies.Update(r.Context(), req.ID, orgID, policy.Payload{
		AllowCountry:    req.AllowCountry,
		AllowState:      req.AllowState,
		BlockTimeRanges: req.BlockTimeRanges,
		RequireTrusted:  req.RequireTrusted,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.recordAction(r.Context(), orgID, "policy_updated", map[string]any{"policy_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deletePolicy(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, http.StatusBadRequest, policy.ErrIDRequired.Error())
		return
	}

	// The store deletes by bare id, so an authenticated request must first
	// prove the policy sits inside its own tenant. Foreign ids read as absent.
	orgID, _ := auth.OrgIDFromContext(r.Context())
	if orgID != "" {
		owned, err := a.policyInOrg(r.Context(), orgID, req.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if !owned {
			handleServiceError(w, r, policy.ErrNotFound)
			return
		}
	}

	if err := a.policies.Delete(r.Context(), req.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.recordAction(r.Context(), orgID, "policy_deleted", map[string]any{"policy_id": req.ID})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// policyInOrg reports whether the org's live policy listing contains id.
func (a *API) policyInOrg(ctx context.Context, orgID, id string) (bool, error) {
	list, err := a.policies.List(ctx, orgID)
	if err != nil {
		return false, err
	}
	for _, p := range list {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// recordAction appends a tenant-visible log row, notifies live viewers, and
// leaves an operator audit line. Log failures never fail the request.
func (a *API) recordAction(ctx context.Context, orgID, action string, meta map[string]any) {
	userID, _ := auth.UserIDFromContext(ctx)
	if userID == "" {
		userID = anonymousActor
	}
	if a.logs != nil {
		entry, err := a.logs.Append(ctx, logbook.LogEntry{
			OrgID:    orgID,
			UserID:   userID,
			Action:   action,
			Metadata: meta,
		})
		if err == nil && a.stream != nil {
			a.stream.Publish(stream.LogEvent{
				ID:        entry.ID,
				OrgID:     entry.OrgID,
				UserID:    entry.UserID,
				Action:    entry.Action,
				CreatedAt: entry.CreatedAt,
			})
		}
	}
	_ = audit.LogEvent(ctx, action, meta)
}
