package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grantdesk.org/internal/access"
	"grantdesk.org/internal/catalog"
	"grantdesk.org/internal/httpapi"
	"grantdesk.org/internal/obs"
	"grantdesk.org/internal/plugin"
	"grantdesk.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GRANTDESK_COMMIT"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Postgres when a DSN is set, in-memory otherwise. The in-memory
	// store keeps local development and demos free of infrastructure.
	var (
		store   access.Store
		db      *sql.DB
		pgStore *pg.Store
	)
	if dsn := os.Getenv("GRANTDESK_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		store = access.NewInMemory()
	}

	// The catalog snapshot comes from the database when seeded there,
	// with the builtin list as fallback.
	cat := catalog.FromPlatforms(catalog.Builtin())
	if pgStore != nil {
		if loaded, err := catalog.Load(ctx, pgStore); err != nil {
			log.Printf("load catalog: %v (using builtin)", err)
		} else if loaded.Len() > 0 {
			cat = loaded
		}
	}

	api := httpapi.New(store, cat, plugin.NewRegistry(), httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("GRANTDESK_ADDR")
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

	log.Printf("Starting grantdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
