package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grapple-arena/internal/config"
	"grapple-arena/internal/logger"
	"grapple-arena/internal/relay"
)

func main() {
	cfg := config.Load()
	addr := flag.String("addr", cfg.RelayAddr, "HTTP listen address")
	dbPath := flag.String("db", cfg.RelayDB, "analytics database path (empty disables analytics)")
	publicURL := flag.String("public-url", cfg.PublicURL, "base URL encoded in join QR codes")
	flag.Parse()

	log := logger.New("relay")

	var analytics *relay.Analytics
	if *dbPath != "" {
		db, err := relay.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		analytics = relay.NewAnalytics(db)
		defer analytics.Stop()
		log.Printf("recording analytics to %s", *dbPath)
	}

	hub := relay.NewHub(relay.Config{
		ClientTimeout: cfg.ClientTimeout,
		PruneInterval: cfg.PruneInterval,
		MaxPerIP:      cfg.MaxPerIP,
		PublicURL:     *publicURL,
	}, analytics, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx)

	server := &http.Server{Addr: *addr, Handler: relay.Routes(hub)}

	go func() {
		log.Printf("relay listening on %s", *addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ListenAndServe: %v", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
