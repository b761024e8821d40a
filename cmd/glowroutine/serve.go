package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/timer"
	httptransport "github.com/hammamikhairi/glowroutine/internal/transport/http"
)

const catalogDebounce = 250 * time.Millisecond

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the routine API and send deferral reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *rootFlags) error {
	d, err := setup(ctx, flags, "stderr")
	if err != nil {
		return err
	}
	defer d.Close()
	log, cfg := d.log, d.cfg

	eng := d.newEngine(engine.WithRewards(d.rewards()))

	handler := httptransport.NewRouter(httptransport.Deps{
		Routines:  eng,
		Health:    d.health,
		Logger:    log,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	watcher := timer.NewWatcher(d.store, d.catalog, d.notifier(), log,
		timer.WithWatchInterval(cfg.Watcher.Interval),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("api listening on %s (version=%s commit=%s build_date=%s)", cfg.HTTP.Addr, Version, Commit, BuildDate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})

	if cfg.Catalog.Watch {
		g.Go(func() error {
			return d.catalog.Watch(gctx, catalogDebounce)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		eng.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
