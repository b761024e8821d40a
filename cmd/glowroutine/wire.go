package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/hammamikhairi/glowroutine/internal/catalog"
	"github.com/hammamikhairi/glowroutine/internal/config"
	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/events"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/storage"
	"github.com/hammamikhairi/glowroutine/internal/storage/postgres"
	httptransport "github.com/hammamikhairi/glowroutine/internal/transport/http"
)

// backend is everything the engine and the reminder watcher need from
// storage. Both the memory store and the Postgres store satisfy it.
type backend interface {
	domain.SelectionStore
	domain.CompletionLog
	domain.DeferredLister
}

var (
	_ backend = (*storage.MemoryStore)(nil)
	_ backend = (*postgres.Store)(nil)
)

// deps holds the wired collaborators shared by the subcommands.
type deps struct {
	cfg     *config.Config
	log     *logger.Logger
	catalog *catalog.Source
	store   backend
	health  httptransport.HealthChecker
	bus     *events.NATSSink // nil when NATS is not configured

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// setup loads config and wires storage, catalog and the event bus.
// defaultLogFile is used when neither the flag nor the config name one.
func setup(ctx context.Context, flags *rootFlags, defaultLogFile string) (*deps, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Log.File = flags.logFile
	}
	if flags.jsonLogs {
		cfg.Log.Format = "json"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}

	d := &deps{cfg: cfg}

	logOut, closeLog := openLogOutput(cfg.Log.File)
	if closeLog != nil {
		d.closers = append(d.closers, closeLog)
	}
	// Third-party libraries that use the standard logger go to the same place.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	var logOpts []logger.Option
	if cfg.Log.Format == "json" {
		logOpts = append(logOpts, logger.WithJSON())
	}
	d.log = logger.New(logger.ParseLevel(cfg.Log.Level), logOut, logOpts...)

	if cfg.Catalog.Path != "" {
		d.catalog, err = catalog.NewFileSource(cfg.Catalog.Path, d.log)
		if err != nil {
			d.Close()
			return nil, err
		}
	} else {
		d.catalog = catalog.NewDefaultSource(d.log)
	}

	if err := d.openStore(ctx); err != nil {
		d.Close()
		return nil, err
	}

	if cfg.NATS.URL != "" {
		conn, err := events.Connect(cfg.NATS.URL, cfg.NATS.ClientName, d.log)
		if err != nil {
			// Events are fire-and-forget; a missing bus never blocks routines.
			d.log.Warn("event bus disabled: %v", err)
		} else {
			d.bus = events.NewNATSSink(conn, cfg.NATS.SubjectPrefix)
			d.closers = append(d.closers, func() {
				if err := conn.Drain(); err != nil {
					d.log.Warn("draining nats: %v", err)
				}
			})
		}
	}

	return d, nil
}

func (d *deps) openStore(ctx context.Context) error {
	if d.cfg.Database.URL == "" {
		mem := storage.NewMemoryStore(d.log)
		if err := mem.SeedDemo(); err != nil {
			return err
		}
		if d.cfg.ProfilePath != "" {
			if _, err := mem.LoadProfile(d.cfg.ProfilePath); err != nil {
				return err
			}
		}
		d.store = mem
		d.log.Info("using in-memory store (%d users)", len(mem.Users()))
		return nil
	}

	pool, err := postgres.NewPool(ctx, d.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	d.closers = append(d.closers, pool.Close)

	if err := postgres.EnsureSchema(ctx, pool, d.log); err != nil {
		return err
	}
	d.store = postgres.NewStore(pool, d.log)
	d.health = postgres.NewHealthChecker(pool)
	d.log.Info("using postgres store")
	return nil
}

// rewards returns the sink every session reports XP and skips to.
func (d *deps) rewards(extra ...domain.RewardSink) events.Fanout {
	sinks := events.Fanout{events.NewLogSink(d.log), events.MetricsSink{}}
	if d.bus != nil {
		sinks = append(sinks, d.bus)
	}
	return append(sinks, extra...)
}

// notifier adds the bus to the given notifiers when it is configured.
func (d *deps) notifier(base ...domain.Notifier) domain.Notifier {
	if d.bus != nil {
		base = append(base, d.bus)
	}
	return events.MultiNotifier(base)
}

// newEngine builds the session engine from config.
func (d *deps) newEngine(extra ...engine.Option) *engine.Engine {
	opts := []engine.Option{
		engine.WithTickInterval(d.cfg.Session.TickInterval),
	}
	if !d.cfg.Session.ShowPending {
		opts = append(opts, engine.WithoutPendingSteps())
	}
	opts = append(opts, extra...)
	return engine.New(d.catalog, d.store, d.store, d.log, opts...)
}

// openLogOutput directs logs to a file so an interactive terminal stays
// clean. An empty path or "stderr" logs to the console.
func openLogOutput(path string) (io.Writer, func()) {
	if path == "" || path == "stderr" {
		return os.Stderr, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		return os.Stderr, nil
	}
	return f, func() { _ = f.Close() }
}
