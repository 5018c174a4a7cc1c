// Command execored is the Execution Core server: it wires a catalog,
// trigger graph, scale-out lock, and worker transport (Postgres/Neo4j/
// Redis/AMQP in production, or every collaborator's in-process fake
// under TD_EXECORE_BACKEND=memory) into the Registry/Planner/
// Scheduler/Dispatcher/Commit Engine pipeline of sections 4.2-4.6,
// serves the section 4.7 Service API and worker-callback endpoint over
// Echo, and runs a background ticker driving the Scheduler/Dispatcher
// loop of section 5.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"tabsdata.io/execcore/internal/bundlestore"
	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/memory"
	"tabsdata.io/execcore/internal/catalog/postgres"
	"tabsdata.io/execcore/internal/config"
	"tabsdata.io/execcore/internal/dispatcher"
	"tabsdata.io/execcore/internal/dispatcher/callback"
	"tabsdata.io/execcore/internal/dispatcher/transport"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/obslog"
	"tabsdata.io/execcore/internal/planner"
	"tabsdata.io/execcore/internal/planner/graph"
	"tabsdata.io/execcore/internal/registry"
	"tabsdata.io/execcore/internal/scheduler"
	"tabsdata.io/execcore/internal/scheduler/lock"
	"tabsdata.io/execcore/internal/service"
)

var log = obslog.Component("main")

func main() {
	cfg := config.Load()
	obslog.SetLevel(cfg.LogLevel)
	if cfg.LogFormat != "json" {
		obslog.SetTextFormat()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, g, claims, pub, store, closers := wireBackends(ctx, cfg)
	defer closeAll(closers)

	ids := idgen.New()
	reg := registry.New(cat, ids).WithBundleStore(store)
	pl := planner.New(cat, g, ids)
	signer := callback.NewTokenSigner([]byte(cfg.Callback.JWTSecret), cfg.Callback.TokenTTL)
	disp := dispatcher.New(cat, pub, signer, ids, cfg.Retry.MaxRetries)
	sched := scheduler.New(cat, ids, cfg.Callback.PublicURL+"/v1/callback", claims)
	core := service.New(cat, reg, pl, disp, ids)

	e := echo.New()
	e.HideBanner = true
	core.RegisterRoutes(e.Group("/v1"), []byte(cfg.Callback.JWTSecret))
	callback.NewHandler(signer, disp.HandleCallback).Register(e.Group("/v1"))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	go runTickLoop(ctx, sched, disp)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	go func() {
		log.WithField("addr", addr).Info("execored listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Error("graceful shutdown failed")
	}
}

// runTickLoop drives section 5's scheduler/dispatcher cycle: every
// tick, ask the Scheduler for newly dispatchable runs and hand each
// manifest to the Dispatcher, then reap any lease that expired without
// a callback.
func runTickLoop(ctx context.Context, sched *scheduler.Scheduler, disp *dispatcher.Dispatcher) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqs, err := sched.Tick(ctx, 50)
			if err != nil {
				log.WithField("error", err).Error("scheduler tick failed")
				continue
			}
			for _, req := range reqs {
				if err := disp.Publish(ctx, req); err != nil {
					log.WithField("error", err).Error("dispatch failed")
				}
			}
			if n, err := disp.ReapExpired(ctx); err != nil {
				log.WithField("error", err).Error("reap expired leases failed")
			} else if n > 0 {
				log.WithField("count", n).Info("reaped expired worker leases")
			}
		}
	}
}

type closer interface {
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// wireBackends constructs the catalog/graph/lock/transport/bundle-store
// collaborators. cfg.Backend == "memory" selects every in-process fake
// for local development; anything else wires the production drivers
// named in SPEC_FULL.md's domain stack.
func wireBackends(ctx context.Context, cfg *config.Config) (catalog.Catalog, graph.Graph, lock.Lock, dispatcher.Publisher, bundlestore.Store, []closer) {
	if cfg.Backend == "memory" {
		return memory.New(), graph.NewMemory(), lock.NewMemory(), transport.NewMemory(), bundlestore.NewMemory(), nil
	}

	var closers []closer

	cat, err := postgres.Open(ctx, postgres.Config{
		DSN: cfg.Catalog.DSN, MaxOpenConns: cfg.Catalog.MaxOpenConns,
		MaxIdleConns: cfg.Catalog.MaxIdleConns, ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		log.WithField("error", err).Fatal("failed to open catalog")
	}
	closers = append(closers, closerFunc(func() error { cat.Close(); return nil }))

	g, err := graph.NewNeo4jGraph(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		log.WithField("error", err).Fatal("failed to open trigger graph")
	}
	closers = append(closers, closerFunc(func() error { return g.Close(context.Background()) }))

	claims, err := lock.NewRedis(ctx, lock.Config{RedisURL: "redis://" + cfg.Lock.Addr, KeyPrefix: "execore"})
	if err != nil {
		log.WithField("error", err).Fatal("failed to open scale-out lock")
	}
	closers = append(closers, claims)

	pub, err := transport.NewAMQP(transport.Config{URL: cfg.Transport.URL, Exchange: cfg.Transport.Exchange})
	if err != nil {
		log.WithField("error", err).Fatal("failed to connect to transport")
	}
	closers = append(closers, pub)

	store, err := bundlestore.Open(ctx, bundlestore.Config{
		Bucket: cfg.BundleStore.Bucket, Region: cfg.BundleStore.Region, Prefix: cfg.BundleStore.Prefix,
		Endpoint: cfg.BundleStore.Endpoint, AccessKey: cfg.BundleStore.AccessKey, SecretKey: cfg.BundleStore.SecretKey,
	})
	if err != nil {
		log.WithField("error", err).Fatal("failed to open bundle store")
	}

	return cat, g, claims, pub, store, closers
}

func closeAll(closers []closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.WithField("error", err).Warn("error closing backend")
		}
	}
}
