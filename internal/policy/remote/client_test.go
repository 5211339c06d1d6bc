package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meshlockr.org/internal/policy"
)

func fakeStore(t *testing.T) (*httptest.Server, *policy.InMemory) {
	t.Helper()
	store := policy.NewInMemory()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/policies", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := store.List(r.Context(), r.URL.Query().Get("org_id"))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(list)
		case http.MethodPost, http.MethodPut:
			var req struct {
				ID    string `json:"id"`
				OrgID string `json:"org_id"`
				policy.Payload
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var (
				p   policy.AccessPolicy
				err error
			)
			if r.Method == http.MethodPost {
				p, err = store.Create(r.Context(), req.OrgID, req.Payload)
			} else {
				p, err = store.Update(r.Context(), req.ID, req.OrgID, req.Payload)
			}
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(p)
		case http.MethodDelete:
			var req struct {
				ID string `json:"id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if err := store.Delete(r.Context(), req.ID); err != nil {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestClientCRUDRoundTrip(t *testing.T) {
	srv, _ := fakeStore(t)
	client := New(srv.URL, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	created, err := client.Create(ctx, "org-1", policy.Payload{
		AllowCountry:    []string{"US"},
		BlockTimeRanges: []string{"22:00-06:00"},
		CreatedBy:       "alice@meshlockr.dev",
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.OrgID != "org-1" {
		t.Fatalf("bad created record: %#v", created)
	}

	updated, err := client.Update(ctx, created.ID, "org-1", policy.Payload{
		AllowCountry:   []string{"FR"},
		RequireTrusted: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.AllowCountry[0] != "FR" || !updated.RequireTrusted {
		t.Fatalf("bad updated record: %#v", updated)
	}

	list, err := client.List(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list: %#v", list)
	}

	if err := client.Delete(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	list, err = client.List(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(list))
	}
}

func TestClientValidatesBeforeNetwork(t *testing.T) {
	// No server behind this URL: a validation failure must never dial it.
	client := New("http://127.0.0.1:0")
	if _, err := client.Create(context.Background(), "org-1", policy.Payload{}); !errors.Is(err, policy.ErrCountryRequired) {
		t.Fatalf("expected ErrCountryRequired, got %v", err)
	}
	if _, err := client.Update(context.Background(), "", "org-1", policy.Payload{AllowCountry: []string{"US"}}); !errors.Is(err, policy.ErrIDRequired) {
		t.Fatalf("expected ErrIDRequired, got %v", err)
	}
}

func TestClientSurfacesRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Missing required fields"})
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, WithHTTPClient(srv.Client()))
	_, err := client.List(context.Background(), "org-1")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest || reqErr.Message != "Missing required fields" {
		t.Fatalf("unexpected error detail: %#v", reqErr)
	}
}

func TestClientSurfacesNetworkError(t *testing.T) {
	client := New("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	_, err := client.List(context.Background(), "org-1")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}
