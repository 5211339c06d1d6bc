package policy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service defines policy store operations. Every call is scoped to a single
// tenant; the store assigns id and timestamps.
type Service interface {
	List(ctx context.Context, orgID string) ([]AccessPolicy, error)
	Create(ctx context.Context, orgID string, p Payload) (AccessPolicy, error)
	Update(ctx context.Context, id, orgID string, p Payload) (AccessPolicy, error)
	Delete(ctx context.Context, id string) error
}

// InMemory implements Service with in-process concurrency safety. Deletes are
// soft: the record stays behind a marker and drops out of List results.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[string]*AccessPolicy
	order []string
}

// NewInMemory creates an empty policy store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]*AccessPolicy)}
}

func (s *InMemory) List(ctx context.Context, orgID string) ([]AccessPolicy, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrOrgRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AccessPolicy
	for _, id := range s.order {
		p := s.byID[id]
		if p.OrgID != orgID || p.Deleted {
			continue
		}
		out = append(out, clone(*p))
	}
	return out, nil
}

func (s *InMemory) Create(ctx context.Context, orgID string, payload Payload) (AccessPolicy, error) {
	if strings.TrimSpace(orgID) == "" {
		return AccessPolicy{}, ErrOrgRequired
	}
	if err := payload.Validate(); err != nil {
		return AccessPolicy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &AccessPolicy{
		ID:              uuid.NewString(),
		OrgID:           orgID,
		AllowCountry:    append([]string(nil), payload.AllowCountry...),
		AllowState:      append([]string(nil), payload.AllowState...),
		BlockTimeRanges: append([]string(nil), payload.BlockTimeRanges...),
		RequireTrusted:  payload.RequireTrusted,
		CreatedBy:       strings.TrimSpace(payload.CreatedBy),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.byID[p.ID] = p
	s.order = append(s.order, p.ID)
	return clone(*p), nil
}

func (s *InMemory) Update(ctx context.Context, id, orgID string, payload Payload) (AccessPolicy, error) {
	if strings.TrimSpace(id) == "" {
		return AccessPolicy{}, ErrIDRequired
	}
	if strings.TrimSpace(orgID) == "" {
		return AccessPolicy{}, ErrOrgRequired
	}
	if err := payload.Validate(); err != nil {
		return AccessPolicy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Deleted || p.OrgID != orgID {
		return AccessPolicy{}, ErrNotFound
	}

	// Full replace of the editable fields; id, org_id and created_by stay.
	p.AllowCountry = append([]string(nil), payload.AllowCountry...)
	p.AllowState = append([]string(nil), payload.AllowState...)
	p.BlockTimeRanges = append([]string(nil), payload.BlockTimeRanges...)
	p.RequireTrusted = payload.RequireTrusted
	p.UpdatedAt = time.Now().UTC()
	return clone(*p), nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok || p.Deleted {
		return ErrNotFound
	}
	p.Deleted = true
	return nil
}

func clone(p AccessPolicy) AccessPolicy {
	p.AllowCountry = append([]string(nil), p.AllowCountry...)
	if p.AllowState != nil {
		p.AllowState = append([]string(nil), p.AllowState...)
	}
	if p.BlockTimeRanges != nil {
		p.BlockTimeRanges = append([]string(nil), p.BlockTimeRanges...)
	}
	return p
}
