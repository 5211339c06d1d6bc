package logbook

import (
	"errors"
	"time"
)

// LogEntry is one append-only audit record. Nothing in this service updates
// or deletes entries once written.
type LogEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	UserEmail string         `json:"user_email,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	OrgID     string         `json:"org_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListRequest selects one page of a tenant's log. Filters are ANDed:
// user_id matches exactly, action matches as a case-insensitive substring,
// date matches the created_at day (YYYY-MM-DD).
type ListRequest struct {
	OrgID  string
	Page   int
	Limit  int
	UserID string
	Action string
	Date   string
}

// Page is the server-side pagination envelope returned to callers.
type Page struct {
	Logs       []LogEntry `json:"logs"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

var (
	ErrOrgRequired    = errors.New("org_id is required")
	ErrUserRequired   = errors.New("user_id is required")
	ErrActionRequired = errors.New("action is required")
)

const (
	defaultLimit = 20
	maxLimit     = 200
)
