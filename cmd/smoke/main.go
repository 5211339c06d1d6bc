// Smoke test against a running API: walks a policy through its full
// lifecycle and fails loudly if any step misbehaves.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"meshlockr.org/internal/policy"
	"meshlockr.org/internal/policy/remote"
)

func main() {
	baseURL := os.Getenv("MESHLOCKR_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	orgID := os.Getenv("MESHLOCKR_SMOKE_ORG")
	if orgID == "" {
		orgID = "org_smoke"
	}

	opts := []remote.Option{}
	if token := os.Getenv("MESHLOCKR_SMOKE_TOKEN"); token != "" {
		opts = append(opts, remote.WithToken(token))
	}
	svc := remote.New(baseURL, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, err := svc.Create(ctx, orgID, policy.Payload{
		AllowCountry:   []string{"US", "CA"},
		RequireTrusted: true,
		CreatedBy:      "smoke@meshlockr.dev",
	})
	if err != nil {
		log.Fatalf("create policy: %v", err)
	}

	list, err := svc.List(ctx, orgID)
	if err != nil {
		log.Fatalf("list policies: %v", err)
	}
	if !containsID(list, created.ID) {
		log.Fatalf("created policy %s missing from list", created.ID)
	}

	updated, err := svc.Update(ctx, created.ID, orgID, policy.Payload{
		AllowCountry: []string{"DE"},
	})
	if err != nil {
		log.Fatalf("update policy: %v", err)
	}
	if len(updated.AllowCountry) != 1 || updated.AllowCountry[0] != "DE" {
		log.Fatalf("update not applied: %v", updated.AllowCountry)
	}
	if updated.RequireTrusted {
		log.Fatal("update should be a full replace")
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		log.Fatalf("delete policy: %v", err)
	}
	list, err = svc.List(ctx, orgID)
	if err != nil {
		log.Fatalf("list after delete: %v", err)
	}
	if containsID(list, created.ID) {
		log.Fatalf("deleted policy %s still listed", created.ID)
	}

	// A late update against the deleted row must surface as not-found.
	var reqErr *remote.RequestError
	if _, err := svc.Update(ctx, created.ID, orgID, policy.Payload{AllowCountry: []string{"FR"}}); err == nil {
		log.Fatal("update after delete should fail")
	} else if !errors.As(err, &reqErr) || reqErr.StatusCode != 404 {
		log.Fatalf("unexpected update-after-delete error: %v", err)
	}

	fmt.Printf("smoke test passed: policy=%s org=%s\n", created.ID, orgID)
}

func containsID(list []policy.AccessPolicy, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}
