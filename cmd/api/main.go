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

	_ "github.com/jackc/pgx/v5/stdlib"

	"faithbase.org/internal/auth"
	"faithbase.org/internal/httpapi"
	"faithbase.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("FAITHBASE_PG_DSN")
	if dsn == "" {
		log.Fatal("FAITHBASE_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)
	cache := auth.NewSnapshotCache(auth.SnapshotTTL)

	catalog := auth.NewCatalog()
	if err := auth.SeedCatalog(catalog); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	service, err := auth.NewService(store, catalog, auth.WithServiceCache(cache))
	if err != nil {
		log.Fatalf("init service: %v", err)
	}
	engine, err := auth.NewEngine(store, auth.WithCache(cache))
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	// Make sure the catalog exists in the store before serving traffic.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := service.EnsureBuiltins(ctx); err != nil {
			log.Fatalf("ensure builtin permissions: %v", err)
		}
		cancel()
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Engine:     engine,
		Service:    service,
	})

	addr := os.Getenv("FAITHBASE_ADDR")
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

	log.Printf("Starting faithbase-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
