package httpapi

import (
	"net/http"
	"strings"
	"time"

	"meshlockr.org/internal/auth"
	"meshlockr.org/internal/invite"
)

type createInviteRequest struct {
	OrgID       string `json:"org_id"`
	EmailDomain string `json:"email_domain,omitempty"`
	Role        string `json:"role,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	MaxUses     int    `json:"max_uses,omitempty"`
}

type inviteResponse struct {
	invite.Invite
	JoinURL string `json:"joinUrl,omitempty"`
}

func (a *API) handleInvites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listInvites(w, r)
	case http.MethodPost:
		a.createInvite(w, r)
	case http.MethodDelete:
		a.deleteInvite(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) listInvites(w http.ResponseWriter, r *http.Request) {
	orgID, ok := a.resolveOrg(r, r.URL.Query().Get("org_id"))
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}
	list, err := a.invites.List(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]inviteResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, a.inviteResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	orgID, ok := a.resolveOrg(r, req.OrgID)
	if !ok {
		writeError(w, r, http.StatusForbidden, "org_id does not match token scope")
		return
	}

	inv := invite.Invite{
		OrgID:       orgID,
		EmailDomain: strings.TrimSpace(req.EmailDomain),
		Role:        strings.TrimSpace(req.Role),
		MaxUses:     req.MaxUses,
	}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "expires_at must be RFC 3339")
			return
		}
		inv.ExpiresAt = &t
	}
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		inv.CreatedBy = uid
	}

	created, err := a.invites.Create(r.Context(), inv)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.recordAction(r.Context(), orgID, "invite_created", map[string]any{"invite_id": created.ID})
	writeJSON(w, http.StatusOK, a.inviteResponse(created))
}

func (a *API) deleteInvite(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, http.StatusBadRequest, "invite id is required")
		return
	}
	if err := a.invites.Delete(r.Context(), req.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	orgID, _ := auth.OrgIDFromContext(r.Context())
	a.recordAction(r.Context(), orgID, "invite_deleted", map[string]any{"invite_id": req.ID})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) inviteResponse(inv invite.Invite) inviteResponse {
	resp := inviteResponse{Invite: inv}
	if a.joinBaseURL != "" {
		resp.JoinURL = a.joinBaseURL + "/join/" + inv.Token
	}
	return resp
}
