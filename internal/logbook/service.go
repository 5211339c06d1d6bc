package logbook

import (
	"context"
	"strings"
	"sync"
	"time"

	"meshlockr.org/internal/ids"
)

// Service defines audit log operations: a write sink plus a server-side
// paginated reader. Unlike policies, the log set is unbounded, so callers
// always request one page at a time.
type Service interface {
	Append(ctx context.Context, entry LogEntry) (LogEntry, error)
	List(ctx context.Context, req ListRequest) (Page, error)
}

// InMemory implements Service with in-process concurrency safety. Entries are
// held oldest-first and served newest-first, matching the store ordering.
type InMemory struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewInMemory creates an empty log.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, entry LogEntry) (LogEntry, error) {
	if strings.TrimSpace(entry.UserID) == "" {
		return LogEntry{}, ErrUserRequired
	}
	if strings.TrimSpace(entry.Action) == "" {
		return LogEntry{}, ErrActionRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = ids.New()
	entry.CreatedAt = time.Now().UTC()
	if entry.Metadata != nil {
		meta := make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			meta[k] = v
		}
		entry.Metadata = meta
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *InMemory) List(ctx context.Context, req ListRequest) (Page, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return Page{}, ErrOrgRequired
	}
	page, limit := NormalizePaging(req.Page, req.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	var matched []LogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.OrgID != req.OrgID {
			continue
		}
		if !Matches(e, req) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	logs := make([]LogEntry, end-start)
	copy(logs, matched[start:end])
	return Page{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// Matches reports whether the entry passes the request's optional filters.
// The org filter is handled by the caller.
func Matches(e LogEntry, req ListRequest) bool {
	if req.UserID != "" && e.UserID != req.UserID {
		return false
	}
	if req.Action != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(req.Action)) {
		return false
	}
	if req.Date != "" && e.CreatedAt.UTC().Format("2006-01-02") != req.Date {
		return false
	}
	return true
}

// NormalizePaging clamps page and limit to their served ranges. Both store
// implementations apply the same rules so the envelope stays consistent.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
