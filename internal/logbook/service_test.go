package logbook

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func appendN(t *testing.T, s *InMemory, orgID string, n int, action string) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.Append(context.Background(), LogEntry{
			UserID: "user-1",
			Action: action,
			OrgID:  orgID,
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := NewInMemory()
	entry, err := s.Append(context.Background(), LogEntry{
		UserID:   "user-1",
		Action:   "policy_created",
		OrgID:    "org-1",
		Metadata: map[string]any{"policy_id": "p-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("missing store-assigned fields: %#v", entry)
	}
}

func TestAppendValidation(t *testing.T) {
	s := NewInMemory()
	if _, err := s.Append(context.Background(), LogEntry{Action: "x"}); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := s.Append(context.Background(), LogEntry{UserID: "u"}); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("expected ErrActionRequired, got %v", err)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	appendN(t, s, "org-1", 25, "login")

	page, err := s.List(ctx, ListRequest{OrgID: "org-1", Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 25 || page.TotalPages != 3 || len(page.Logs) != 10 {
		t.Fatalf("unexpected page shape: total=%d pages=%d len=%d", page.Total, page.TotalPages, len(page.Logs))
	}
	// Newest first across pages.
	if page.Logs[0].ID < page.Logs[9].ID {
		t.Fatal("expected newest-first ordering")
	}

	last, err := s.List(ctx, ListRequest{OrgID: "org-1", Page: 3, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Logs) != 5 {
		t.Fatalf("expected 5 entries on the last page, got %d", len(last.Logs))
	}

	beyond, err := s.List(ctx, ListRequest{OrgID: "org-1", Page: 9, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond.Logs) != 0 {
		t.Fatalf("expected empty page beyond range, got %d", len(beyond.Logs))
	}
}

func TestListFilters(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_, _ = s.Append(ctx, LogEntry{UserID: "alice", Action: "policy_created", OrgID: "org-1"})
	_, _ = s.Append(ctx, LogEntry{UserID: "bob", Action: "Policy_Deleted", OrgID: "org-1"})
	_, _ = s.Append(ctx, LogEntry{UserID: "alice", Action: "invite_created", OrgID: "org-1"})
	_, _ = s.Append(ctx, LogEntry{UserID: "alice", Action: "policy_created", OrgID: "org-2"})

	byUser, err := s.List(ctx, ListRequest{OrgID: "org-1", UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if byUser.Total != 2 {
		t.Fatalf("user filter: expected 2, got %d", byUser.Total)
	}

	byAction, err := s.List(ctx, ListRequest{OrgID: "org-1", Action: "POLICY"})
	if err != nil {
		t.Fatal(err)
	}
	if byAction.Total != 2 {
		t.Fatalf("action substring filter: expected 2, got %d", byAction.Total)
	}
	for _, e := range byAction.Logs {
		if !strings.Contains(strings.ToLower(e.Action), "policy") {
			t.Fatalf("entry %q escaped the action filter", e.Action)
		}
	}

	today := byUser.Logs[0].CreatedAt.UTC().Format("2006-01-02")
	byDate, err := s.List(ctx, ListRequest{OrgID: "org-1", Date: today})
	if err != nil {
		t.Fatal(err)
	}
	if byDate.Total != 3 {
		t.Fatalf("date filter: expected 3, got %d", byDate.Total)
	}
	none, err := s.List(ctx, ListRequest{OrgID: "org-1", Date: "1999-01-01"})
	if err != nil {
		t.Fatal(err)
	}
	if none.Total != 0 {
		t.Fatalf("stale date filter: expected 0, got %d", none.Total)
	}
}

func TestListRequiresOrg(t *testing.T) {
	s := NewInMemory()
	if _, err := s.List(context.Background(), ListRequest{}); !errors.Is(err, ErrOrgRequired) {
		t.Fatalf("expected ErrOrgRequired, got %v", err)
	}
}
