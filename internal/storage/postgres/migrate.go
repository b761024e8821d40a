package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hammamikhairi/glowroutine/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const schemaMigrationLockID int64 = 0x474c4f575f4d4752 // "GLOW_MGR"

var requiredTables = []string{
	"routine_users",
	"ingredient_selections",
	"exercise_selections",
	"step_completions",
	"session_completions",
}

type migration struct {
	Name string
	SQL  string
}

func orderedMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}

	out := make([]migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migration{Name: entry.Name(), SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EnsureSchema applies pending migrations under an advisory lock and then
// verifies the tables exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	started := time.Now()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection for schema bootstrap: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire schema bootstrap lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); err != nil {
			log.Error("schema bootstrap unlock failed: %v", err)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := orderedMigrations()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var done bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, m.Name,
		).Scan(&done); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if done {
			continue
		}

		log.Info("applying migration %s", m.Name)
		if err := applyMigration(ctx, conn, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied++
	}

	log.Info("schema ready (applied=%d, total=%d, took=%s)", applied, len(migrations), time.Since(started).Round(time.Millisecond))
	return SchemaReady(ctx, pool)
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, m migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, m.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SchemaReady reports an error naming any missing table.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	var missing []string
	for _, table := range requiredTables {
		var name *string
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1)`, "public."+table).Scan(&name); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if name == nil || strings.TrimSpace(*name) == "" {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HealthChecker adapts SchemaReady for readiness probes.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a readiness checker on pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Check pings the database and verifies the schema.
func (h *HealthChecker) Check(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return err
	}
	return SchemaReady(ctx, h.pool)
}
