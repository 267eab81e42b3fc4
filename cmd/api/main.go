package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biovault.org/internal/auth"
	"biovault.org/internal/donors"
	"biovault.org/internal/httpapi"
	"biovault.org/internal/ids"
	"biovault.org/internal/obs"
	"biovault.org/internal/recruiting"
	"biovault.org/internal/sponsors"
	"biovault.org/internal/store/pg"
	"biovault.org/internal/trials"
	"biovault.org/internal/webstore"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = ""
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	dsn := os.Getenv("BIOVAULT_PG_DSN")
	if dsn == "" {
		log.Error("BIOVAULT_PG_DSN is required")
		os.Exit(1)
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Error("open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	accounts, err := auth.NewService(store, ids.New)
	if err != nil {
		log.Error("accounts service", "err", err)
		os.Exit(1)
	}
	trialsSvc, err := trials.NewService(store, ids.New)
	if err != nil {
		log.Error("trials service", "err", err)
		os.Exit(1)
	}
	donorsSvc, err := donors.NewService(store, ids.New)
	if err != nil {
		log.Error("donors service", "err", err)
		os.Exit(1)
	}
	recruitingSvc, err := recruiting.NewService(store, ids.New)
	if err != nil {
		log.Error("recruiting service", "err", err)
		os.Exit(1)
	}
	sponsorsSvc, err := sponsors.NewService(store, ids.New)
	if err != nil {
		log.Error("sponsors service", "err", err)
		os.Exit(1)
	}
	webstoreSvc, err := webstore.NewService(store, ids.New)
	if err != nil {
		log.Error("webstore service", "err", err)
		os.Exit(1)
	}

	api := httpapi.New(httpapi.Config{
		Accounts:   accounts,
		Trials:     trialsSvc,
		Donors:     donorsSvc,
		Recruiting: recruitingSvc,
		Sponsors:   sponsorsSvc,
		Webstore:   webstoreSvc,
		Probe:      httpapi.ReadyProbe{DB: store},
		Version:    version,
		Logger:     log,
	})

	addr := os.Getenv("BIOVAULT_ADDR")
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

	go func() {
		log.Info("starting biovault-api", "version", version, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("stopped")
}
