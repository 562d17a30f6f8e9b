package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"sponsor-backend/internal/clients"
	"sponsor-backend/internal/config"
	"sponsor-backend/internal/handlers"
	"sponsor-backend/internal/router"
	"sponsor-backend/internal/services"
)

func main() {
	log.Println("🚀 Starting sponsor backend...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Sponsor key: missing or malformed key material refuses to start
	sponsorService, err := services.NewSponsorKeyService(cfg.Sponsor.PrivateKey)
	if err != nil {
		log.Fatalf("❌ Failed to load sponsor key: %v", err)
	}

	ledgerClient, err := clients.NewLedgerClient(cfg.Ledger)
	if err != nil {
		log.Fatalf("❌ Failed to create ledger client: %v", err)
	}

	proverClient := clients.NewProverClient(cfg.Prover)

	// NATS is optional telemetry; the pipeline runs without it
	var natsClient *clients.NATSClient
	if cfg.NATS.URL != "" {
		natsClient, err = clients.NewNATSClient(cfg.NATS)
		if err != nil {
			log.Printf("⚠️ NATS unavailable, submission events disabled: %v", err)
			natsClient = nil
		} else {
			defer natsClient.Close()
		}
	}

	cache := services.NewPendingTransactionCache(time.Duration(cfg.Cache.TTL) * time.Second)
	wsHandler := handlers.NewWebSocketHandler(cache)

	pipeline := services.NewSponsoredTransactionService(ledgerClient, sponsorService, cache, natsClient)
	proofService := services.NewProofService(proverClient, cfg.Prover.MaxInputWidth)

	// Background sweep so abandoned transactions do not linger until the next
	// cache access
	sweepTicker := time.NewTicker(time.Duration(cfg.Cache.SweepInterval) * time.Second)
	defer sweepTicker.Stop()
	go func() {
		for range sweepTicker.C {
			cache.SweepExpired(time.Now())
		}
	}()

	transferHandler := handlers.NewTransferHandler(pipeline, logger)
	proofHandler := handlers.NewProofHandler(proofService, logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(cfg.Admin, logger)
	cacheStatsHandler := handlers.NewCacheStatsHandler(cache)

	r := router.SetupRouter(cfg, transferHandler, proofHandler, adminAuthHandler, cacheStatsHandler, wsHandler, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Printf("🛑 Received signal %v, shutting down", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("✅ Sponsor backend listening on %s (network=%s)", addr, cfg.Ledger.Network)
	if err := r.Run(addr); err != nil {
		log.Fatalf("❌ Server exited: %v", err)
	}
}
