package logbook

import (
	"context"
	"encoding/csv"
	"io"
	"sync"
	"time"

	"meshlockr.org/internal/stream"
)

// Viewer is the read-only paginated view over one tenant's audit log. It
// requests a single page at a time from the service; it never loads the full
// set. A failed fetch leaves the previously shown page intact.
type Viewer struct {
	svc   Service
	orgID string

	mu     sync.Mutex
	page   int
	limit  int
	userID string
	action string
	date   string
	shown  Page
}

// NewViewer creates a viewer on page 1 with the given page size (the service
// default applies when limit <= 0).
func NewViewer(svc Service, orgID string, limit int) *Viewer {
	return &Viewer{svc: svc, orgID: orgID, page: 1, limit: limit}
}

// Fetch loads the current page with the active filters and remembers it as
// the shown page.
func (v *Viewer) Fetch(ctx context.Context) (Page, error) {
	v.mu.Lock()
	req := ListRequest{
		OrgID:  v.orgID,
		Page:   v.page,
		Limit:  v.limit,
		UserID: v.userID,
		Action: v.action,
		Date:   v.date,
	}
	v.mu.Unlock()

	page, err := v.svc.List(ctx, req)
	if err != nil {
		return Page{}, err
	}

	v.mu.Lock()
	v.shown = page
	v.mu.Unlock()
	return page, nil
}

// SetFilters replaces the active filters and resets to page 1. The caller
// re-fetches afterwards.
func (v *Viewer) SetFilters(userID, action, date string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.userID, v.action, v.date = userID, action, date
	v.page = 1
}

// SetPage moves to the requested page, clamped to >= 1.
func (v *Viewer) SetPage(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if page < 1 {
		page = 1
	}
	v.page = page
}

// Shown returns the last successfully fetched page.
func (v *Viewer) Shown() Page {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shown
}

// Follow re-fetches the current page whenever a log event for this tenant
// arrives on the stream, until ctx ends. onUpdate receives each refreshed
// page; fetch errors keep the shown page and are dropped, the next event
// retries naturally. Without a stream the viewer stays purely pull-based.
func (v *Viewer) Follow(ctx context.Context, st *stream.Stream, onUpdate func(Page)) {
	if st == nil {
		return
	}
	ch := st.Subscribe(ctx)
	go func() {
		for evt := range ch {
			if evt.OrgID != "" && evt.OrgID != v.orgID {
				continue
			}
			page, err := v.Fetch(ctx)
			if err != nil {
				continue
			}
			if onUpdate != nil {
				onUpdate(page)
			}
		}
	}()
}

// ExportCSV writes the shown page as CSV, one row per entry.
func (v *Viewer) ExportCSV(w io.Writer) error {
	page := v.Shown()
	return WriteCSV(w, page.Logs)
}

// WriteCSV renders log entries in the export format used by the console.
func WriteCSV(w io.Writer, logs []LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"User ID", "Action", "Created At"}); err != nil {
		return err
	}
	for _, e := range logs {
		if err := cw.Write([]string{e.UserID, e.Action, e.CreatedAt.UTC().Format(time.RFC3339)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
