package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshlockr.org/internal/httpapi"
	"meshlockr.org/internal/invite"
	"meshlockr.org/internal/logbook"
	"meshlockr.org/internal/obs"
	"meshlockr.org/internal/policy"
	"meshlockr.org/internal/store/pg"
	"meshlockr.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		policies policy.Service
		logs     logbook.Service
		invites  invite.Service
	)
	var store *pg.Store
	if dsn := os.Getenv("MESHLOCKR_PG_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		policies = store.Policies()
		logs = store.Logs()
		invites = store.Invites()
	} else {
		// Without a DSN everything lives in memory. Local development only.
		log.Println("MESHLOCKR_PG_DSN not set, using in-memory stores")
		policies = policy.NewInMemory()
		logs = logbook.NewInMemory()
		invites = invite.NewInMemory()
	}

	probe := httpapi.ReadyProbe{}
	if store != nil {
		probe.DB = store.DB()
	}

	api := httpapi.New(probe, version, policies, logs, invites, stream.New())
	if base := os.Getenv("MESHLOCKR_JOIN_BASE_URL"); base != "" {
		api.SetJoinBaseURL(base)
	}

	addr := os.Getenv("MESHLOCKR_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting meshlockr-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
