package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshlockr.org/internal/policy"
)

// flakyStore wraps the in-memory policy store with injectable failures and a
// delete counter, so tests can observe exactly which requests went out.
type flakyStore struct {
	*policy.InMemory

	mu         sync.Mutex
	failDelete error
	failUpdate error
	failList   error
	deletes    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{InMemory: policy.NewInMemory()}
}

func (s *flakyStore) List(ctx context.Context, orgID string) ([]policy.AccessPolicy, error) {
	s.mu.Lock()
	failErr := s.failList
	s.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}
	return s.InMemory.List(ctx, orgID)
}

func (s *flakyStore) Update(ctx context.Context, id, orgID string, p policy.Payload) (policy.AccessPolicy, error) {
	s.mu.Lock()
	failErr := s.failUpdate
	s.mu.Unlock()
	if failErr != nil {
		return policy.AccessPolicy{}, failErr
	}
	return s.InMemory.Update(ctx, id, orgID, p)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	failErr := s.failDelete
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return s.InMemory.Delete(ctx, id)
}

func (s *flakyStore) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func seedController(t *testing.T, opts ...Option) (*Controller, *flakyStore, []policy.AccessPolicy) {
	t.Helper()
	store := newFlakyStore()
	ctx := context.Background()

	p1, err := store.Create(ctx, "org-1", policy.Payload{
		AllowCountry: []string{"US"},
		AllowState:   []string{"CA"},
		CreatedBy:    "alice@meshlockr.dev",
	})
	if err != nil {
		t.Fatal(err)
	}
	p2, err := store.Create(ctx, "org-1", policy.Payload{
		AllowCountry:   []string{"FR"},
		RequireTrusted: true,
		CreatedBy:      "bob@meshlockr.dev",
	})
	if err != nil {
		t.Fatal(err)
	}

	c := NewController(store, "org-1", opts...)
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	return c, store, []policy.AccessPolicy{p1, p2}
}

func TestLoadExcludesDeletedAndSurfacesErrors(t *testing.T) {
	c, store, seeded := seedController(t)

	if err := store.InMemory.Delete(context.Background(), seeded[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Total(); got != 1 {
		t.Fatalf("expected 1 policy after reload, got %d", got)
	}

	store.mu.Lock()
	store.failList = errors.New("fetch failed")
	store.mu.Unlock()
	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected load error to surface")
	}
	// Snapshot unchanged on failure.
	if got := c.Total(); got != 1 {
		t.Fatalf("failed load must not clobber the snapshot, got %d", got)
	}
}

func TestFilterPredicatesAreANDed(t *testing.T) {
	c, _, seeded := seedController(t)
	p2 := seeded[1]

	c.ApplyFilters(Filters{Trusted: TrustedYes})
	visible := c.Filtered()
	if len(visible) != 1 || visible[0].ID != p2.ID {
		t.Fatalf("trusted=yes should leave only %s, got %#v", p2.ID, visible)
	}

	// Paginating the filtered single-item set gives one page of one item.
	pageItems, totalPages := c.Paginate(1, 1)
	if totalPages != 1 || len(pageItems) != 1 || pageItems[0].ID != p2.ID {
		t.Fatalf("unexpected page: items=%d totalPages=%d", len(pageItems), totalPages)
	}

	c.ApplyFilters(Filters{Trusted: TrustedYes, Search: "alice"})
	if got := c.Filtered(); len(got) != 0 {
		t.Fatalf("ANDed predicates should exclude everything, got %#v", got)
	}

	c.ApplyFilters(Filters{Search: "ALICE"})
	got := c.Filtered()
	if len(got) != 1 || got[0].CreatedBy != "alice@meshlockr.dev" {
		t.Fatalf("search should be case-insensitive over created_by, got %#v", got)
	}

	c.ApplyFilters(Filters{Search: "fr"})
	got = c.Filtered()
	if len(got) != 1 || got[0].ID != p2.ID {
		t.Fatalf("search should cover the joined country list, got %#v", got)
	}

	day := seeded[0].UpdatedAt.UTC().Format("2006-01-02")
	c.ApplyFilters(Filters{Date: day})
	if got := c.Filtered(); len(got) != 2 {
		t.Fatalf("date filter on updated_at day should match both, got %d", len(got))
	}
	c.ApplyFilters(Filters{Date: "1999-01-01"})
	if got := c.Filtered(); len(got) != 0 {
		t.Fatalf("stale date should match nothing, got %d", len(got))
	}
}

func TestPaginateBounds(t *testing.T) {
	store := newFlakyStore()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if _, err := store.Create(ctx, "org-1", policy.Payload{AllowCountry: []string{"US"}}); err != nil {
			t.Fatal(err)
		}
	}
	c := NewController(store, "org-1")
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	items, totalPages := c.Paginate(1, 3)
	if totalPages != 3 || len(items) != 3 {
		t.Fatalf("page 1: items=%d totalPages=%d", len(items), totalPages)
	}
	items, _ = c.Paginate(3, 3)
	if len(items) != 1 {
		t.Fatalf("last page should hold the remainder, got %d", len(items))
	}
	items, totalPages = c.Paginate(4, 3)
	if len(items) != 0 || totalPages != 3 {
		t.Fatalf("beyond range must be empty, got items=%d totalPages=%d", len(items), totalPages)
	}
	items, _ = c.Paginate(0, 3)
	if len(items) != 3 {
		t.Fatalf("page below 1 clamps to the first page, got %d items", len(items))
	}
}

func TestCreateValidatesBeforeNetwork(t *testing.T) {
	c, store, _ := seedController(t)

	if _, err := c.Create(context.Background(), policy.Payload{}); !errors.Is(err, policy.ErrCountryRequired) {
		t.Fatalf("expected ErrCountryRequired, got %v", err)
	}
	if _, err := c.Update(context.Background(), "some-id", policy.Payload{}); !errors.Is(err, policy.ErrCountryRequired) {
		t.Fatalf("expected ErrCountryRequired, got %v", err)
	}
	// Nothing reached the store.
	list, err := store.InMemory.List(context.Background(), "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("store mutated by invalid payload: %d policies", len(list))
	}
}

func TestCreateAppendsOnSuccessOnly(t *testing.T) {
	c, _, _ := seedController(t)

	created, err := c.Create(context.Background(), policy.Payload{AllowCountry: []string{"DE"}})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || c.Total() != 3 {
		t.Fatalf("snapshot not patched after create: total=%d", c.Total())
	}
}

func TestUpdatePatchesSnapshotAndLeavesItOnFailure(t *testing.T) {
	c, store, seeded := seedController(t)
	p1 := seeded[0]

	updated, err := c.Update(context.Background(), p1.ID, policy.Payload{AllowCountry: []string{"GB"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.AllowCountry[0] != "GB" {
		t.Fatalf("unexpected update result: %#v", updated)
	}
	found := false
	for _, p := range c.Filtered() {
		if p.ID == p1.ID && p.AllowCountry[0] == "GB" {
			found = true
		}
	}
	if !found {
		t.Fatal("snapshot not patched by id after update")
	}

	store.mu.Lock()
	store.failUpdate = errors.New("boom")
	store.mu.Unlock()
	if _, err := c.Update(context.Background(), p1.ID, policy.Payload{AllowCountry: []string{"JP"}}); err == nil {
		t.Fatal("expected update error")
	}
	for _, p := range c.Filtered() {
		if p.ID == p1.ID && p.AllowCountry[0] != "GB" {
			t.Fatalf("failed update must leave the snapshot unchanged: %#v", p)
		}
	}
}

// A slow update that resolves after a soft delete re-appends the row: the
// design has no version guard and keeps last-write-wins on purpose.
func TestLateUpdateResurrectsPendingDelete(t *testing.T) {
	c, _, seeded := seedController(t, WithGraceWindow(time.Hour))
	p1 := seeded[0]

	if !c.SoftDelete(p1.ID) {
		t.Fatal("soft delete did not start")
	}
	if c.Total() != 1 {
		t.Fatalf("optimistic removal missing, total=%d", c.Total())
	}

	if _, err := c.Update(context.Background(), p1.ID, policy.Payload{AllowCountry: []string{"NL"}}); err != nil {
		t.Fatal(err)
	}
	if c.Total() != 2 {
		t.Fatalf("late update should resurrect the row, total=%d", c.Total())
	}
}
