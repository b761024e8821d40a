package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.SelectionStore = (*Store)(nil)
	_ domain.CompletionLog  = (*Store)(nil)
	_ domain.DeferredLister = (*Store)(nil)
)

// notifyChannel carries the user id of every changed record.
const notifyChannel = "routine_selections"

// Store is the PostgreSQL selection store and completion log.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewStore creates a store on pool. Call EnsureSchema first.
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Load reads the user's record with selections in insertion order.
func (s *Store) Load(ctx context.Context, userID string) (*domain.UserRoutineData, error) {
	data := &domain.UserRoutineData{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT premium, concerns, excluded_base_steps, updated_at
		 FROM routine_users WHERE user_id = $1`,
		userID,
	).Scan(&data.Premium, &data.Concerns, &data.ExcludedBaseSteps, &data.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ingredient_id, state, waiting_for_delivery, product_name, defer_until, updated_at
		 FROM ingredient_selections WHERE user_id = $1 ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load ingredients for %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sel     domain.IngredientSelection
			raw     string
			waiting bool
		)
		if err := rows.Scan(&sel.ID, &raw, &waiting, &sel.ProductName, &sel.DeferUntil, &sel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		sel.State, err = domain.ResolveSelectionState(raw, waiting)
		if err != nil {
			s.log.Warn("user %s ingredient %s: %v", userID, sel.ID, err)
			continue
		}
		data.Ingredients = append(data.Ingredients, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredients: %w", err)
	}

	exRows, err := s.pool.Query(ctx,
		`SELECT exercise_id, state FROM exercise_selections WHERE user_id = $1 ORDER BY position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load exercises for %s: %w", userID, err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var (
			sel domain.ExerciseSelection
			raw string
		)
		if err := exRows.Scan(&sel.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		sel.State, err = domain.ResolveSelectionState(raw, false)
		if err != nil {
			s.log.Warn("user %s exercise %s: %v", userID, sel.ID, err)
			continue
		}
		data.Exercises = append(data.Exercises, sel)
	}
	if err := exRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}

	return data, nil
}

// Update upserts the patched selections and notifies listeners.
func (s *Store) Update(ctx context.Context, userID string, patch domain.SelectionPatch) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO routine_users (user_id) VALUES ($1)
			 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()`,
			userID,
		); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if err := upsertSelections(ctx, tx, userID, patch); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, userID); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
}

// Seed writes a whole record: profile flags plus selections.
func (s *Store) Seed(ctx context.Context, data *domain.UserRoutineData) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO routine_users (user_id, premium, concerns, excluded_base_steps)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id) DO UPDATE SET
			   premium = EXCLUDED.premium,
			   concerns = EXCLUDED.concerns,
			   excluded_base_steps = EXCLUDED.excluded_base_steps,
			   updated_at = NOW()`,
			data.UserID, data.Premium, nonNil(data.Concerns), nonNil(data.ExcludedBaseSteps),
		); err != nil {
			return fmt.Errorf("upsert user %s: %w", data.UserID, err)
		}
		patch := domain.SelectionPatch{Ingredients: data.Ingredients, Exercises: data.Exercises}
		if err := upsertSelections(ctx, tx, data.UserID, patch); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, data.UserID)
		return err
	})
}

func upsertSelections(ctx context.Context, tx pgx.Tx, userID string, patch domain.SelectionPatch) error {
	for _, sel := range patch.Ingredients {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ingredient_selections
			   (user_id, ingredient_id, state, waiting_for_delivery, product_name, defer_until, position)
			 VALUES ($1, $2, $3, $4, $5, $6,
			   (SELECT COALESCE(MAX(position) + 1, 0) FROM ingredient_selections WHERE user_id = $1))
			 ON CONFLICT (user_id, ingredient_id) DO UPDATE SET
			   state = EXCLUDED.state,
			   waiting_for_delivery = EXCLUDED.waiting_for_delivery,
			   product_name = EXCLUDED.product_name,
			   defer_until = EXCLUDED.defer_until,
			   updated_at = NOW()`,
			userID, sel.ID, sel.State.String(), sel.WaitingForDelivery(), sel.ProductName, sel.DeferUntil,
		); err != nil {
			return fmt.Errorf("upsert ingredient %s: %w", sel.ID, err)
		}
	}
	for _, sel := range patch.Exercises {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exercise_selections (user_id, exercise_id, state, position)
			 VALUES ($1, $2, $3,
			   (SELECT COALESCE(MAX(position) + 1, 0) FROM exercise_selections WHERE user_id = $1))
			 ON CONFLICT (user_id, exercise_id) DO UPDATE SET
			   state = EXCLUDED.state,
			   updated_at = NOW()`,
			userID, sel.ID, sel.State.String(),
		); err != nil {
			return fmt.Errorf("upsert exercise %s: %w", sel.ID, err)
		}
	}
	return nil
}

// Subscribe holds a pooled connection on LISTEN and reloads the record
// whenever userID changes. The connection is released on unsubscribe or
// when ctx ends.
func (s *Store) Subscribe(ctx context.Context, userID string, fn func(*domain.UserRoutineData)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			// Connections go back to the pool; stop listening first.
			unlistenCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			if _, err := conn.Exec(unlistenCtx, "UNLISTEN "+notifyChannel); err != nil {
				conn.Conn().Close(unlistenCtx)
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					s.log.Error("listen for %s: %v", userID, err)
				}
				return
			}
			if n.Payload != userID {
				continue
			}
			data, err := s.Load(subCtx, userID)
			if err != nil {
				s.log.Warn("reload %s after notify: %v", userID, err)
				continue
			}
			fn(data)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// RecordStep stores a completed step once per user, section and day.
func (s *Store) RecordStep(ctx context.Context, rec domain.CompletionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO step_completions (user_id, day, section, step_id, xp, completed_at)
		 VALUES ($1, $2::date, $3, $4, $5, $6)
		 ON CONFLICT (user_id, day, section, step_id) DO NOTHING`,
		rec.UserID, rec.CompletedAt.Format("2006-01-02"), string(rec.Section), rec.StepID, rec.XP, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record step %s for %s: %w", rec.StepID, rec.UserID, err)
	}
	return nil
}

// RecordSession stores a completed section run.
func (s *Store) RecordSession(ctx context.Context, rec domain.SessionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_completions (id, user_id, section, step_ids, completed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), rec.UserID, string(rec.Section), nonNil(rec.StepIDs), rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record %s session for %s: %w", rec.Section, rec.UserID, err)
	}
	return nil
}

// CompletedSteps returns the steps completed in section on day's date.
func (s *Store) CompletedSteps(ctx context.Context, userID string, section domain.SectionName, day time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step_id FROM step_completions
		 WHERE user_id = $1 AND section = $2 AND day = $3::date
		 ORDER BY completed_at`,
		userID, string(section), day.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("completed %s steps for %s: %w", section, userID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan completed steps: %w", err)
	}
	return ids, nil
}

// DueDeferred lists deferred ingredients whose defer date has passed.
func (s *Store) DueDeferred(ctx context.Context, now time.Time) ([]domain.DueSelection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, ingredient_id, defer_until FROM ingredient_selections
		 WHERE defer_until IS NOT NULL AND defer_until <= $1
		   AND (state = 'deferred' OR (state = 'not_received' AND waiting_for_delivery))
		 ORDER BY user_id, ingredient_id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("due deferred: %w", err)
	}
	defer rows.Close()

	var out []domain.DueSelection
	for rows.Next() {
		var d domain.DueSelection
		if err := rows.Scan(&d.UserID, &d.IngredientID, &d.DeferUntil); err != nil {
			return nil, fmt.Errorf("scan due selection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
