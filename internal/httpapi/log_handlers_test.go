package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"meshlockr.org/internal/logbook"
)

func seedLogs(t *testing.T, api *apiClient, headers map[string]string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		resp := api.post("/v1/logs", map[string]any{
			"org_id":  "org-1",
			"user_id": "user-" + strconv.Itoa(i%2),
			"action":  "login_attempt",
		}, headers)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("append status: %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestLogListEnvelopeAndPaging(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")
	seedLogs(t, api, headers, 25)

	resp := api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"page":   {"2"},
		"limit":  {"10"},
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %d", resp.StatusCode)
	}
	page := decode[logbook.Page](t, resp)
	if page.Total != 25 || page.TotalPages != 3 || page.Page != 2 || page.Limit != 10 {
		t.Fatalf("unexpected envelope: %#v", page)
	}
	if len(page.Logs) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(page.Logs))
	}

	// A page past the end is empty but keeps the envelope.
	resp = api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"page":   {"9"},
		"limit":  {"10"},
	}, headers)
	page = decode[logbook.Page](t, resp)
	if len(page.Logs) != 0 || page.Total != 25 {
		t.Fatalf("unexpected overflow page: %#v", page)
	}
}

func TestLogFilters(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")
	seedLogs(t, api, headers, 4)

	resp := api.post("/v1/logs", map[string]any{
		"org_id":  "org-1",
		"user_id": "auditor",
		"action":  "policy_export",
	}, headers)
	resp.Body.Close()

	resp = api.get("/v1/logs", url.Values{
		"org_id":  {"org-1"},
		"user_id": {"auditor"},
	}, headers)
	page := decode[logbook.Page](t, resp)
	if page.Total != 1 || page.Logs[0].Action != "policy_export" {
		t.Fatalf("user filter failed: %#v", page)
	}

	// Action matches as a case-insensitive substring.
	resp = api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"action": {"EXPORT"},
	}, headers)
	page = decode[logbook.Page](t, resp)
	if page.Total != 1 {
		t.Fatalf("action filter failed: %#v", page)
	}

	// Date filter covers today only.
	today := time.Now().UTC().Format("2006-01-02")
	resp = api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"date":   {today},
	}, headers)
	page = decode[logbook.Page](t, resp)
	if page.Total != 5 {
		t.Fatalf("date filter failed: %#v", page)
	}

	resp = api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"date":   {"1999-01-01"},
	}, headers)
	page = decode[logbook.Page](t, resp)
	if page.Total != 0 {
		t.Fatalf("expected empty day: %#v", page)
	}
}

func TestLogListRejectsBadPaging(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")

	resp := api.get("/v1/logs", url.Values{
		"org_id": {"org-1"},
		"page":   {"two"},
	}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLogAppendValidation(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")

	resp := api.post("/v1/logs", map[string]any{
		"org_id":  "org-1",
		"user_id": "user-1",
	}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing action, got %d", resp.StatusCode)
	}
}

func TestLogExportCSV(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")
	seedLogs(t, api, headers, 3)

	resp := api.get("/v1/logs/export", url.Values{"org_id": {"org-1"}}, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type: %s", ct)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "User ID,Action,Created At" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "login_attempt") {
		t.Fatalf("unexpected row: %q", lines[1])
	}
}

func TestLogStreamDeliversTenantEvents(t *testing.T) {
	api := newTestAPI(t)
	headers := api.authHeader("org-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/logs/stream?org_id=org-1", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	// First line is the stream-started comment.
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read preamble: %v", err)
	}

	got := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				got <- strings.TrimSpace(line)
				return
			}
		}
	}()

	appendResp := api.post("/v1/logs", map[string]any{
		"org_id":  "org-1",
		"user_id": "user-1",
		"action":  "login_attempt",
	}, headers)
	appendResp.Body.Close()

	select {
	case line := <-got:
		if !strings.Contains(line, "login_attempt") {
			t.Fatalf("unexpected event: %q", line)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for stream event")
	}
}
