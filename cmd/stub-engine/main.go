package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/outreach-relay/internal/eventbus"
	"github.com/ignite/outreach-relay/internal/notifications"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// feed is the stub's in-memory notification list.
type feed struct {
	mu      sync.RWMutex
	records []notifications.Record
}

func (f *feed) add(rec notifications.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	if len(f.records) > 200 {
		f.records = f.records[len(f.records)-200:]
	}
}

func (f *feed) snapshot() []notifications.Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]notifications.Record(nil), f.records...)
}

var names = []string{"Ana Ruiz", "Lee Park", "Kim Okafor", "Dana Weiss", "Sam Iyer"}

func randomRecord(now time.Time) notifications.Record {
	kinds := []notifications.Kind{notifications.KindMailOpened, notifications.KindReplied, notifications.KindMeetingScheduled}
	rec := notifications.Record{
		ID:         uuid.NewString(),
		Kind:       kinds[rand.Intn(len(kinds))],
		Name:       names[rand.Intn(len(names))],
		OccurredAt: now.UTC(),
	}
	if rec.Kind == notifications.KindMeetingScheduled {
		meeting := now.Add(time.Duration(24+rand.Intn(72)) * time.Hour).Truncate(30 * time.Minute).UTC()
		rec.MeetingTime = &meeting
	}
	return rec
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func main() {
	log.Println("[StubEngine] WARNING: local stand-in for the outreach engine. Data is random.")

	port := envInt("STUB_PORT", 9090)
	failPercent := envInt("STUB_FAIL_PERCENT", 0)
	tenantID := os.Getenv("STUB_TENANT_ID")
	interval := time.Duration(envInt("STUB_EVENT_INTERVAL_SECONDS", 20)) * time.Second

	f := &feed{}
	now := time.Now()
	for i := 5; i > 0; i-- {
		f.add(randomRecord(now.Add(-time.Duration(i) * time.Hour)))
	}

	var healthy = true
	var healthMu sync.RWMutex

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		healthMu.RLock()
		ok := healthy
		healthMu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"down","service":"stub-engine"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy","service":"stub-engine"}`))
	})

	// Toggle health to exercise the dashboard's degraded mode.
	mux.HandleFunc("POST /stub/health", func(w http.ResponseWriter, r *http.Request) {
		healthMu.Lock()
		healthy = r.URL.Query().Get("healthy") != "false"
		healthMu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		if failPercent > 0 && rand.Intn(100) < failPercent {
			http.Error(w, "stub: injected failure", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"notifications": f.snapshot()})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pub := publisher(); pub != nil && tenantID != "" {
		go emitLoop(ctx, f, pub, tenantID, interval)
		log.Printf("[StubEngine] Publishing a random event to tenant %s every %s", tenantID, interval)
	} else {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-ticker.C:
					f.add(randomRecord(t))
				}
			}
		}()
	}

	go func() {
		log.Printf("[StubEngine] Listening on %s (fail rate %d%%)", server.Addr, failPercent)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[StubEngine] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

// publisher picks Redis pub/sub when REDIS_URL is set, else pg_notify when
// DATABASE_URL is set.
func publisher() eventbus.Publisher {
	channel := os.Getenv("STUB_CHANNEL")
	if channel == "" {
		channel = "tenant_events"
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			opts = &redis.Options{Addr: url}
		}
		return eventbus.NewRedisPublisher(redis.NewClient(opts), channel)
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Printf("[StubEngine] Database unavailable: %v", err)
			return nil
		}
		db.SetMaxOpenConns(2)
		return eventbus.NewPGPublisher(db, channel)
	}
	return nil
}

func emitLoop(ctx context.Context, f *feed, pub eventbus.Publisher, tenantID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			rec := randomRecord(t)
			f.add(rec)
			if err := pub.Publish(ctx, tenantID, string(rec.Kind), rec); err != nil {
				log.Printf("[StubEngine] Publish failed: %v", err)
			}
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Organization-ID")
		w.Header().Set("X-Server-Identity", "stub-engine")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
