package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/tabletop-server/internal/catalog"
	"github.com/DoyleJ11/tabletop-server/internal/config"
	"github.com/DoyleJ11/tabletop-server/internal/httpapi"
	"github.com/DoyleJ11/tabletop-server/internal/hub"
	"github.com/DoyleJ11/tabletop-server/internal/logging"
	"github.com/DoyleJ11/tabletop-server/internal/session"
	"github.com/DoyleJ11/tabletop-server/internal/storage"
	"github.com/DoyleJ11/tabletop-server/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}

	// Sessions are not tied to the signal context; they are closed by Shutdown.
	h := hub.NewHub(context.Background(), catalog.New(cfg.GamesDir),
		hub.WithStore(store),
		hub.WithLogger(log.Named("hub")),
		hub.WithRuntimeOptions(session.WithOutboxSize(cfg.WSOutbox)),
	)
	coord := ws.NewCoordinator(h,
		ws.WithLogger(log.Named("ws")),
		ws.WithReadLimit(cfg.WSReadLimit),
		ws.WithWriteTimeout(cfg.WSWriteTimeout),
		ws.WithOriginPatterns(cfg.WSOrigins...),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, coord, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("games", cfg.GamesDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Hijacked websockets are not tracked by the server; closing the
		// sessions first closes them.
		return multierr.Combine(
			h.Shutdown(sctx),
			srv.Shutdown(sctx),
			store.Close(),
		)
	})
	return g.Wait()
}

func openStore(ctx context.Context, dsn string, log *zap.Logger) (storage.Store, error) {
	if dsn == "" {
		log.Info("using in-memory session store")
		return storage.NewMemory(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := storage.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	log.Info("using postgres session store")
	return pg, nil
}
