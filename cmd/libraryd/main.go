package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-portal/internal/config"
	"library-portal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := server.OpenStore(cfg.Server.DB)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	srv := server.New(store, server.Options{
		UploadDir:      cfg.Server.UploadDir,
		LoanPeriod:     cfg.LoanPeriod(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s (db=%s, uploads=%s)", cfg.Server.Addr, cfg.Server.DB, cfg.Server.UploadDir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
