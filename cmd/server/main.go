package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/outreach-relay/internal/api"
	"github.com/ignite/outreach-relay/internal/config"
	"github.com/ignite/outreach-relay/internal/engineclient"
	"github.com/ignite/outreach-relay/internal/eventbus"
	"github.com/ignite/outreach-relay/internal/notifications"
	"github.com/ignite/outreach-relay/internal/pkg/distlock"
	"github.com/ignite/outreach-relay/internal/pkg/logger"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	log.Println("[Relay] outreach-relay starting (cmd/server)")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	host, port := cfg.Server.GetHost(), cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := openRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}
	db := openPostgres(ctx, cfg.Postgres.URL)
	if db != nil {
		defer db.Close()
	}

	engine, err := engineclient.New(engineclient.Config{
		BaseURL:           cfg.Engine.BaseURL,
		MaxAttempts:       cfg.Engine.MaxAttempts,
		BaseDelay:         cfg.Engine.BaseDelay(),
		BackoffMultiplier: cfg.Engine.BackoffMultiplier,
		AttemptTimeout:    cfg.Engine.AttemptTimeout(),
		HealthPath:        cfg.Health.Path,
		ProbeTimeout:      cfg.Health.ProbeTimeout(),
	})
	if err != nil {
		log.Fatalf("Invalid engine configuration: %v", err)
	}
	log.Printf("[Relay] Engine: %s (%d attempts, base delay %s, x%.1f)",
		cfg.Engine.BaseURL, cfg.Engine.MaxAttempts, cfg.Engine.BaseDelay(), cfg.Engine.BackoffMultiplier)

	bus := eventbus.New()

	renderer, err := notifications.NewRenderer(cfg.Notifications.Templates)
	if err != nil {
		log.Fatalf("Invalid notification templates: %v", err)
	}
	tracker := notifications.NewTracker(
		notifications.NewEngineFeed(engine, cfg.Engine.NotificationsPath),
		checkpointStore(cfg.Notifications, redisClient),
		notifications.WithRenderer(renderer),
	)

	monitorOpts := []engineclient.MonitorOption{engineclient.OnHealthChange(broadcastHealth(bus))}
	var lease *distlock.Lease
	if cfg.Health.Shared && redisClient != nil {
		lease = distlock.NewLease(redisClient, "engine-health-probe", 2*cfg.Health.Interval())
		shared := engineclient.NewRedisSharedHealth(redisClient, "", 3*cfg.Health.Interval())
		monitorOpts = append(monitorOpts, engineclient.WithProbeLock(lease, shared))
		log.Println("[Relay] Engine health probing shared across replicas via Redis")
	}
	monitor := engineclient.NewMonitor(engine, cfg.Health.Interval(), monitorOpts...)

	server := api.NewServer(cfg.Server, cfg.Realtime, api.Deps{
		Bus:     bus,
		Engine:  engine,
		Tracker: tracker,
		DB:      db,
		Redis:   redisClient,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })

	if cfg.Realtime.EnablePGRelay && cfg.Postgres.URL != "" {
		relay := eventbus.NewPGRelay(cfg.Postgres.URL, cfg.Realtime.PGChannel, bus)
		g.Go(func() error { return relay.Run(gctx) })
		log.Printf("[Relay] pg_notify relay enabled on channel %q", cfg.Realtime.PGChannel)
	}
	if cfg.Realtime.EnableRedisRelay && redisClient != nil {
		relay := eventbus.NewRedisRelay(redisClient, cfg.Realtime.RedisChannel, bus)
		g.Go(func() error { return relay.Run(gctx) })
		log.Printf("[Relay] Redis relay enabled on channel %q", cfg.Realtime.RedisChannel)
	}

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("[Relay] Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[Relay] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if lease != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if rerr := lease.Release(releaseCtx); rerr != nil {
			log.Printf("[Relay] Failed to release probe lease: %v", rerr)
		}
		cancel()
	}
	if err != nil {
		log.Fatalf("[Relay] Stopped with error: %v", err)
	}
	log.Println("[Relay] Server stopped")
}

func openRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("[Relay] Redis not configured: checkpoints in memory, no shared health, no Redis relay")
		return nil
	}
	var client *redis.Client
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[Relay] Redis ping failed (%v); continuing, features degrade until it recovers", err)
	} else {
		log.Println("[Relay] Connected to Redis")
	}
	return client
}

func openPostgres(ctx context.Context, dsn string) *sql.DB {
	if dsn == "" {
		return nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("[Relay] Database ping failed for %s: %v", extractHost(dsn), err)
	} else {
		log.Printf("[Relay] Connected to database at %s", extractHost(dsn))
	}
	return db
}

func checkpointStore(cfg config.NotificationsConfig, redisClient *redis.Client) notifications.CheckpointStore {
	if cfg.Store == "redis" {
		if redisClient != nil {
			return notifications.NewRedisStore(redisClient, cfg.KeyPrefix, cfg.CheckpointTTL())
		}
		log.Println("[Relay] notifications.store=redis but Redis is not configured; using memory")
	}
	return notifications.NewMemoryStore()
}

// broadcastHealth pushes engine live/degraded transitions to every tenant with
// an open dashboard.
func broadcastHealth(bus *eventbus.Bus) func(prev, next engineclient.HealthState) {
	return func(prev, next engineclient.HealthState) {
		payload := map[string]any{
			"mode":            next.Mode(),
			"healthy":         next.Healthy,
			"last_checked_at": next.LastCheckedAt,
		}
		for _, tenant := range bus.Registry().Tenants() {
			bus.Emit(tenant, "engine_status", payload)
		}
	}
}
