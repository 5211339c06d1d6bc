// Package invite manages teammate invite links: opaque join tokens scoped to
// one organization, optionally restricted by email domain, expiry and use
// count. Redemption happens in the external identity flow and is out of
// scope here; this service only stores and lists the links.
package invite

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Invite is one shareable join link.
type Invite struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	OrgID       string     `json:"org_id"`
	EmailDomain string     `json:"email_domain,omitempty"`
	Role        string     `json:"role"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     int        `json:"max_uses,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DefaultRole is assigned when an invite names no role.
const DefaultRole = "basic_member"

var (
	ErrNotFound    = errors.New("invite not found")
	ErrOrgRequired = errors.New("org_id is required")
)

// Service defines invite link operations.
type Service interface {
	Create(ctx context.Context, inv Invite) (Invite, error)
	List(ctx context.Context, orgID string) ([]Invite, error)
	Delete(ctx context.Context, id string) error
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu   sync.RWMutex
	byID map[string]Invite
}

// NewInMemory creates an empty invite store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]Invite)}
}

func (s *InMemory) Create(ctx context.Context, inv Invite) (Invite, error) {
	if strings.TrimSpace(inv.OrgID) == "" {
		return Invite{}, ErrOrgRequired
	}
	if strings.TrimSpace(inv.Role) == "" {
		inv.Role = DefaultRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inv.ID = uuid.NewString()
	inv.Token = uuid.NewString()
	inv.CreatedAt = time.Now().UTC()
	s.byID[inv.ID] = inv
	return inv, nil
}

func (s *InMemory) List(ctx context.Context, orgID string) ([]Invite, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrOrgRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Invite
	for _, inv := range s.byID {
		if inv.OrgID == orgID {
			out = append(out, inv)
		}
	}
	// Newest first, matching the store ordering.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
