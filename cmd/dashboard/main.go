package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-dashboard/internal/api"
	"github.com/technosupport/ts-dashboard/internal/config"
	"github.com/technosupport/ts-dashboard/internal/forward"
	"github.com/technosupport/ts-dashboard/internal/live"
	"github.com/technosupport/ts-dashboard/internal/player"
	"github.com/technosupport/ts-dashboard/internal/session"
	"github.com/technosupport/ts-dashboard/internal/state"
)

func main() {
	configPath := flag.String("config", "dashboard.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State plane: stores plus the single-writer dispatcher.
	roster := state.NewRoster()
	feed := state.NewAlertFeed(cfg.Live.AlertFeedCap)
	dispatcher := state.NewDispatcher(roster, feed)

	// Optional alert fan-out.
	if cfg.Forward.NATSURL != "" {
		sink, err := forward.NewNATSSink(cfg.Forward.NATSURL, cfg.Forward.Subject)
		if err != nil {
			log.Fatalf("NATS connect error: %v", err)
		}
		defer sink.Close()
		dispatcher.OnAlert = forward.Hook(sink)
		log.Printf("Forwarding alerts to %s (%s)", cfg.Forward.NATSURL, cfg.Forward.Subject)
	}

	go dispatcher.Run(ctx)

	// Session plane.
	client := api.NewClient(cfg.Backend.BaseURL)
	store := buildStore(cfg)
	controller := session.NewController(client, store, dispatcher)

	if err := authenticate(ctx, controller, cfg); err != nil {
		log.Fatalf("Authentication failed: %v", err)
	}
	defer controller.Close()

	// Live plane: one preview cell per active camera.
	factory := player.NewFactory(nil)
	manager := live.NewManager(dispatcher, factory, client.BaseURL)
	manager.ProbeInterval = cfg.ProbeInterval()
	manager.ProbeAttempts = cfg.Live.ProbeAttempts

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx)
	}()

	// Credential changes in the config file trigger a re-login, which is
	// the only path that reopens the push connection.
	watchCredentials(ctx, *configPath, cfg, controller)

	if cfg.Ops.Listen != "" {
		go serveOps(cfg.Ops.Listen, controller, manager, roster, feed)
	}

	go statusLoop(ctx, controller, roster, feed, manager)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")

	cancel()
	wg.Wait()
}

func buildStore(cfg *config.Config) session.Store {
	if cfg.Session.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
		})
		return session.NewRedisStore(rdb)
	}
	return session.NewFileStore(cfg.Session.FilePath)
}

// authenticate resumes a stored session when possible, otherwise logs in
// with the configured credentials (registering first if allowed).
func authenticate(ctx context.Context, c *session.Controller, cfg *config.Config) error {
	resumed, err := c.Resume(ctx)
	if err != nil {
		log.Printf("Session resume failed: %v", err)
	}
	if resumed {
		log.Printf("Resumed session for %s", c.User().Username)
		return nil
	}

	err = c.Login(ctx, cfg.Auth.Username, cfg.Auth.Password)
	if err == nil {
		return nil
	}

	var apiErr *api.Error
	if cfg.Auth.AutoRegister && errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		log.Printf("Login failed (%s), trying registration", apiErr.Message)
		return c.Register(ctx, cfg.Auth.Username, cfg.Auth.Password)
	}
	return err
}

func watchCredentials(ctx context.Context, path string, cfg *config.Config, c *session.Controller) {
	current := cfg.Auth
	err := config.Watch(ctx, path, func() {
		next, err := config.Load(path)
		if err != nil {
			log.Printf("Config reload failed: %v", err)
			return
		}
		if next.Auth == current {
			return
		}
		current = next.Auth
		log.Println("Credentials changed, re-establishing session")
		if err := c.Login(ctx, current.Username, current.Password); err != nil {
			log.Printf("Re-login failed: %v", err)
		}
	})
	if err != nil {
		log.Printf("Config watcher unavailable: %v", err)
	}
}

// serveOps exposes metrics, health and a state dump on a local port.
func serveOps(addr string, c *session.Controller, m *live.Manager, roster *state.Roster, feed *state.AlertFeed) {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user":    c.User(),
			"status":  c.Status(),
			"cameras": roster.Snapshot(),
			"alerts":  feed.Snapshot(),
			"cells":   m.Statuses(),
		})
	})

	log.Printf("Ops endpoint on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Printf("Ops endpoint error: %v", err)
	}
}

func statusLoop(ctx context.Context, c *session.Controller, roster *state.Roster, feed *state.AlertFeed, m *live.Manager) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Dashboard: %d cameras (%d active), %d alerts, %d cells, %s",
				roster.Len(), len(roster.Active()), feed.Len(), m.CellCount(), c.Status())
		}
	}
}
