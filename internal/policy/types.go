package policy

import (
	"errors"
	"strings"
	"time"
)

// AccessPolicy is one tenant's access rule set. id and org_id are immutable
// after creation; updated_at moves on every successful update.
type AccessPolicy struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"org_id"`
	AllowCountry    []string  `json:"allow_country"`
	AllowState      []string  `json:"allow_state,omitempty"`
	BlockTimeRanges []string  `json:"block_time_ranges,omitempty"`
	RequireTrusted  bool      `json:"require_trusted_device"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Deleted         bool      `json:"deleted,omitempty"`
}

// Payload carries the editable fields of a policy. Updates are a full replace
// of these fields, never a partial patch.
type Payload struct {
	AllowCountry    []string `json:"allow_country"`
	AllowState      []string `json:"allow_state,omitempty"`
	BlockTimeRanges []string `json:"block_time_ranges,omitempty"`
	RequireTrusted  bool     `json:"require_trusted_device"`
	CreatedBy       string   `json:"created_by,omitempty"`
}

var (
	ErrNotFound        = errors.New("policy not found")
	ErrCountryRequired = errors.New("at least one country is required")
	ErrOrgRequired     = errors.New("org_id is required")
	ErrIDRequired      = errors.New("policy id is required")
)

// Validate enforces the single blocking rule: allow_country must be non-empty.
// Everything else is optional and passed through as-is.
func (p Payload) Validate() error {
	for _, c := range p.AllowCountry {
		if strings.TrimSpace(c) != "" {
			return nil
		}
	}
	return ErrCountryRequired
}

// SplitTimeRanges turns a comma-separated free-text field into the stored
// token list: split on commas, trim each segment, drop empties. No format
// validation is applied to the remaining segments.
func SplitTimeRanges(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, seg := range strings.Split(raw, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}
