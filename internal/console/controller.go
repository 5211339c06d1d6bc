// Package console holds the client-side state behind the access-policies
// screen: the in-memory snapshot of one tenant's policies, the view
// parameters (search, filters, pagination, selection) and the soft-delete
// coordinator with its per-item undo timers.
package console

import (
	"context"
	"strings"
	"sync"
	"time"

	"meshlockr.org/internal/policy"
)

// TrustedFilter narrows the visible set by the trusted-device flag.
type TrustedFilter string

const (
	TrustedAny TrustedFilter = "any"
	TrustedYes TrustedFilter = "yes"
	TrustedNo  TrustedFilter = "no"
)

// Filters are the three view predicates. They are ANDed: an empty search or
// date and TrustedAny match everything.
type Filters struct {
	Search  string
	Trusted TrustedFilter
	Date    string // updated_at day, YYYY-MM-DD
}

// Notice is a displayable message surfaced to the screen. Nothing here
// retries automatically; a failed action is reported and left to the user.
type Notice struct {
	Kind    string // "error" or "info"
	Message string
}

// DefaultGraceWindow is how long a soft-deleted policy can be restored before
// the delete request is actually issued.
const DefaultGraceWindow = 5 * time.Second

// Controller owns the authoritative snapshot of one tenant's policies. One
// instance exists per tenant view; the tenant is fixed at construction rather
// than read from ambient state.
type Controller struct {
	orgID  string
	svc    policy.Service
	grace  time.Duration
	notify func(Notice)

	mu       sync.Mutex
	snapshot []policy.AccessPolicy
	filters  Filters
	page     int
	perPage  int
	selected map[string]bool
	pending  map[string]*pendingDelete
	banner   string
}

// Option configures a Controller.
type Option func(*Controller)

// WithGraceWindow overrides the soft-delete countdown. Tests shorten it.
func WithGraceWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithNotify registers the sink for surfaced messages.
func WithNotify(fn func(Notice)) Option {
	return func(c *Controller) { c.notify = fn }
}

// NewController creates a controller for one tenant on top of a policy store
// client.
func NewController(svc policy.Service, orgID string, opts ...Option) *Controller {
	c := &Controller{
		orgID:    orgID,
		svc:      svc,
		grace:    DefaultGraceWindow,
		page:     1,
		perPage:  5,
		filters:  Filters{Trusted: TrustedAny},
		selected: make(map[string]bool),
		pending:  make(map[string]*pendingDelete),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches all policies for the tenant and replaces the snapshot,
// excluding soft-deleted rows. The error is returned for display; there is no
// automatic retry.
func (c *Controller) Load(ctx context.Context) error {
	list, err := c.svc.List(ctx, c.orgID)
	if err != nil {
		return err
	}
	fresh := make([]policy.AccessPolicy, 0, len(list))
	for _, p := range list {
		if p.Deleted {
			continue
		}
		fresh = append(fresh, p)
	}

	c.mu.Lock()
	c.snapshot = fresh
	c.mu.Unlock()
	return nil
}

// ApplyFilters replaces the view predicates and resets to the first page.
func (c *Controller) ApplyFilters(f Filters) {
	if f.Trusted == "" {
		f.Trusted = TrustedAny
	}
	c.mu.Lock()
	c.filters = f
	c.page = 1
	c.mu.Unlock()
}

// SetPerPage changes the page size and resets to the first page.
func (c *Controller) SetPerPage(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	c.perPage = n
	c.page = 1
	c.mu.Unlock()
}

// SetPage moves the current page, clamped to >= 1.
func (c *Controller) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	c.page = n
	c.mu.Unlock()
}

// VisiblePage derives the current page from the snapshot, filters and
// pagination state.
func (c *Controller) VisiblePage() ([]policy.AccessPolicy, int) {
	c.mu.Lock()
	page, perPage := c.page, c.perPage
	c.mu.Unlock()
	return c.Paginate(page, perPage)
}

// Paginate returns the [(page-1)*perPage, page*perPage) slice of the filtered
// set plus the total page count. Pages below 1 are clamped to 1; pages beyond
// the range yield an empty slice, not an error.
func (c *Controller) Paginate(page, perPage int) ([]policy.AccessPolicy, int) {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	filtered := c.Filtered()
	totalPages := (len(filtered) + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start >= len(filtered) {
		return nil, totalPages
	}
	end := start + perPage
	if end > len(filtered) {
		end = len(filtered)
	}
	out := make([]policy.AccessPolicy, end-start)
	copy(out, filtered[start:end])
	return out, totalPages
}

// Filtered returns the policies passing every active predicate, in snapshot
// order.
func (c *Controller) Filtered() []policy.AccessPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []policy.AccessPolicy
	for _, p := range c.snapshot {
		if matches(p, c.filters) {
			out = append(out, p)
		}
	}
	return out
}

// Total reports the snapshot size before filtering.
func (c *Controller) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshot)
}

// Create validates the payload client-side, delegates to the store and
// appends the created policy to the snapshot. A validation failure never
// reaches the network.
func (c *Controller) Create(ctx context.Context, payload policy.Payload) (policy.AccessPolicy, error) {
	if err := payload.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}
	created, err := c.svc.Create(ctx, c.orgID, payload)
	if err != nil {
		return policy.AccessPolicy{}, err
	}
	c.mu.Lock()
	c.snapshot = append(c.snapshot, created)
	c.mu.Unlock()
	return created, nil
}

// Update validates and delegates to the store, then patches the snapshot by
// id. If the row was optimistically removed by a pending delete in the
// meantime, the late result re-appends it: there is no version guard, last
// write wins (a known race in this design, kept deliberately).
func (c *Controller) Update(ctx context.Context, id string, payload policy.Payload) (policy.AccessPolicy, error) {
	if err := payload.Validate(); err != nil {
		return policy.AccessPolicy{}, err
	}
	updated, err := c.svc.Update(ctx, id, c.orgID, payload)
	if err != nil {
		return policy.AccessPolicy{}, err
	}

	c.mu.Lock()
	replaced := false
	for i := range c.snapshot {
		if c.snapshot[i].ID == id {
			c.snapshot[i] = updated
			replaced = true
			break
		}
	}
	if !replaced {
		c.snapshot = append(c.snapshot, updated)
	}
	c.mu.Unlock()
	return updated, nil
}

// Select toggles a policy in the multi-select set.
func (c *Controller) Select(id string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.selected[id] = true
	} else {
		delete(c.selected, id)
	}
}

// Selected returns the ids currently in the multi-select set.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.selected))
	for id := range c.selected {
		out = append(out, id)
	}
	return out
}

func (c *Controller) emit(n Notice) {
	if c.notify != nil {
		c.notify(n)
	}
}

func matches(p policy.AccessPolicy, f Filters) bool {
	switch f.Trusted {
	case TrustedYes:
		if !p.RequireTrusted {
			return false
		}
	case TrustedNo:
		if p.RequireTrusted {
			return false
		}
	}
	if f.Date != "" && p.UpdatedAt.UTC().Format("2006-01-02") != f.Date {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystacks := []string{
			strings.Join(p.AllowCountry, ", "),
			strings.Join(p.AllowState, ", "),
			p.CreatedBy,
		}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
