package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/claude/setplayer/internal/config"
	"github.com/claude/setplayer/internal/localstore"
	"github.com/claude/setplayer/internal/mcp"
	"github.com/claude/setplayer/internal/metrics"
	"github.com/claude/setplayer/internal/plans"
	"github.com/claude/setplayer/internal/server"
	"github.com/claude/setplayer/internal/session"
	"github.com/claude/setplayer/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("SetPlayer starting", "version", Version)

	if err := run(*configPath, *migrateOnly, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// backend is the store behind the session providers.
type backend struct {
	plans    session.PlanProvider
	history  session.HistoryProvider
	programs session.ProgramProvider
	store    session.SnapshotStore
	close    func()
}

func run(configPath string, migrateOnly bool, log *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collectors []prometheus.Collector
	var be backend
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			return err
		}
		log.Info("migrations applied")
		if migrateOnly {
			log.Info("migrate-only: exiting")
			return nil
		}
		db, err := storage.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting database: %w", err)
		}
		log.Info("database connected")
		collectors = append(collectors, pgxpoolprometheus.NewCollector(db.Pool, map[string]string{"db_name": cfg.Database.Name}))
		be = backend{plans: db, history: db, programs: db, store: db, close: db.Close}
	default:
		if migrateOnly {
			log.Info("migrate-only: nothing to migrate for the sqlite backend")
			return nil
		}
		st, err := localstore.Open(cfg.Store.Dir)
		if err != nil {
			return err
		}
		log.Info("local store opened", "dir", cfg.Store.Dir)
		be = backend{plans: st, history: st, store: st, close: func() { _ = st.Close() }}
	}
	defer be.close()

	if cfg.Plans.Dir != "" {
		be.plans = plans.Dir{Path: cfg.Plans.Dir}
		log.Info("reading plans from directory", "dir", cfg.Plans.Dir)
	}

	sessions := session.NewManager(session.Deps{
		Plans:    be.plans,
		History:  be.history,
		Programs: be.programs,
		Store:    be.store,
		Logger:   log,
		Listener: func(ev session.Event) {
			log.Debug("session event", "kind", ev.Kind, "round", ev.Round)
		},
	}, cfg.Session.Engine())

	reg := metrics.NewRegistry(collectors...)
	m := metrics.NewManager("setplayer", reg)

	srv := server.New(sessions, be.plans, be.history, m, cfg.Auth.APIKey, log)
	srv.SetMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcp.New(sessions, be.history, Version, log)))

	listener, closeListener, err := listen(cfg, log)
	if err != nil {
		return err
	}
	defer closeListener()

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
		return sessions.Close(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// listen opens the tailnet listener when Tailscale is enabled and a plain TCP
// one otherwise.
func listen(cfg *config.Config, log *slog.Logger) (net.Listener, func(), error) {
	if !cfg.Tailscale.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on %s: %w", addr, err)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
		return ln, func() {}, nil
	}

	ts := &tsnet.Server{
		Hostname: cfg.Tailscale.Hostname,
		Dir:      cfg.Tailscale.StateDir,
	}
	if err := ts.Start(); err != nil {
		return nil, nil, fmt.Errorf("tsnet start: %w", err)
	}
	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		ts.Close()
		return nil, nil, fmt.Errorf("tsnet listen: %w", err)
	}
	log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	return ln, func() { ts.Close() }, nil
}
