package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tyron12233/animochat-match-server/internal/bus"
	"github.com/tyron12233/animochat-match-server/internal/config"
	"github.com/tyron12233/animochat-match-server/internal/discovery"
	"github.com/tyron12233/animochat-match-server/internal/matching"
	"github.com/tyron12233/animochat-match-server/internal/server"
	"github.com/tyron12233/animochat-match-server/internal/session"
)

func main() {
	log.Println("Starting AnimoChat matchmaking service...")

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- Redis ---
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	instanceID := uuid.NewString()[:8]

	// --- Notification bus ---
	var notifier bus.Bus
	if cfg.NATSURL != "" {
		natsBus, err := bus.NewNATSBus(cfg.NATSURL, "animochat-match-"+instanceID)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		notifier = natsBus
	} else {
		notifier = bus.NewRedisBus(rdb)
	}

	// --- Core components ---
	selector := discovery.NewSelector(cfg.DiscoveryServerURL)
	sessions := session.NewManager(rdb)
	queue := matching.NewQueue(rdb)
	engine := matching.NewEngine(queue, sessions, notifier, selector, cfg.PopularDenylist)

	srv := server.New(engine, queue, sessions, notifier, rdb, cfg, instanceID)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Routes(),
	}

	log.Printf("AnimoChat matchmaking service running")
	log.Printf("  port:          %d", cfg.Port)
	log.Printf("  redis_url:     %s", cfg.RedisURL)
	log.Printf("  discovery_url: %s", cfg.DiscoveryServerURL)
	log.Printf("  public_url:    %s", cfg.PublicURL)
	log.Printf("  bus:           %s", notifier.State())
	log.Printf("  instance_id:   %s", instanceID)
	if cfg.Maintenance {
		log.Printf("  maintenance:   ON")
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		notifier.Close()
		if err := rdb.Close(); err != nil {
			log.Printf("redis close: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
