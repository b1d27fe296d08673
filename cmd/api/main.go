package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reserv.org/internal/auth"
	"reserv.org/internal/config"
	"reserv.org/internal/httpapi"
	"reserv.org/internal/obs"
	"reserv.org/internal/schedule"
	"reserv.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("RESERV_AUTH_SECRET is required")
	}

	var (
		authStore  auth.Store
		ledger     schedule.Ledger
		readyProbe func(ctx context.Context) error
		pgStore    *pg.Store
	)
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		authStore = pgStore
		ledger = pgStore
		readyProbe = func(ctx context.Context) error {
			return pgStore.DB().PingContext(ctx)
		}
	} else {
		// In-memory stores for local development only.
		log.Print("RESERV_PG_DSN is empty, using in-memory stores")
		authStore = auth.NewMemoryStore()
		ledger = schedule.NewMemoryLedger()
	}

	authSvc, err := auth.NewService(authStore)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authSvc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtins: %v", err)
	}
	cancel()

	scheduleSvc, err := schedule.NewService(ledger, authSvc,
		schedule.WithStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		log.Fatalf("schedule service: %v", err)
	}

	api := httpapi.New(authSvc, scheduleSvc,
		httpapi.WithVersion(version),
		httpapi.WithReadyProbe(readyProbe),
		httpapi.WithTokenTTL(cfg.TokenTTL),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting reserv-api %s on %s", version, srv.Addr)

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
