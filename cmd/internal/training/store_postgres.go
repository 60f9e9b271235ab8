package training

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a ProgressStore backed by PostgreSQL. The pool is
// owned by the caller; Close is a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore behavior.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "gcf").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("training: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("training: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed ProgressStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "gcf"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("training: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// GetProgress returns the stored record or a fresh Level-1 record.
func (s *PostgresStore) GetProgress(ctx context.Context, userID string) (Progress, error) {
	if s == nil || s.pool == nil {
		return Progress{}, errors.New("training: nil store")
	}
	if userID == "" {
		return Progress{}, errors.New("training: missing user id")
	}
	if err := ctx.Err(); err != nil {
		return Progress{}, err
	}

	progress := pgIdent(s.schema, "training_progress")

	var p Progress
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, xp, level, current_streak, longest_streak, last_activity_day, event_count, updated_at
		   FROM `+progress+`
		  WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.XP, &p.Level, &p.CurrentStreak, &p.LongestStreak, &p.LastActivityDay, &p.EventCount, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Progress{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return p, nil
}

// SaveProgress upserts the record.
func (s *PostgresStore) SaveProgress(ctx context.Context, p Progress) error {
	if s == nil || s.pool == nil {
		return errors.New("training: nil store")
	}
	if p.UserID == "" {
		return errors.New("training: missing user id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	progress := pgIdent(s.schema, "training_progress")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+progress+` (
		     user_id, xp, level, current_streak, longest_streak, last_activity_day, event_count, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		   ON CONFLICT (user_id) DO UPDATE SET
		     xp = EXCLUDED.xp,
		     level = EXCLUDED.level,
		     current_streak = EXCLUDED.current_streak,
		     longest_streak = EXCLUDED.longest_streak,
		     last_activity_day = EXCLUDED.last_activity_day,
		     event_count = EXCLUDED.event_count,
		     updated_at = now()`,
		p.UserID, p.XP, p.Level, p.CurrentStreak, p.LongestStreak, p.LastActivityDay, p.EventCount,
	); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// UnlockAchievement inserts the badge; the conflict target makes the
// first-insert check race-free across instances.
func (s *PostgresStore) UnlockAchievement(ctx context.Context, userID, code string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("training: nil store")
	}
	if userID == "" || code == "" {
		return false, errors.New("training: invalid achievement input")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	achievements := pgIdent(s.schema, "training_achievements")

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+achievements+` (user_id, code)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, code) DO NOTHING`,
		userID, code,
	)
	if err != nil {
		return false, fmt.Errorf("insert achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Achievements returns the user's unlocked badges, oldest first.
func (s *PostgresStore) Achievements(ctx context.Context, userID string) ([]Achievement, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("training: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	achievements := pgIdent(s.schema, "training_achievements")

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, code, unlocked_at
		   FROM `+achievements+`
		  WHERE user_id = $1
		  ORDER BY unlocked_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Achievement
	for rows.Next() {
		var a Achievement
		if err := rows.Scan(&a.UserID, &a.Code, &a.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueCertification records a passing course completion. Re-issuing
// for the same course keeps the best score.
func (s *PostgresStore) IssueCertification(ctx context.Context, cert Certification) error {
	if s == nil || s.pool == nil {
		return errors.New("training: nil store")
	}
	if cert.UserID == "" || cert.CourseID == "" {
		return errors.New("training: invalid certification input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	certs := pgIdent(s.schema, "training_certifications")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+certs+` AS c (user_id, course_id, score)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, course_id) DO UPDATE SET
		   score = GREATEST(c.score, EXCLUDED.score)`,
		cert.UserID, cert.CourseID, cert.Score,
	); err != nil {
		return fmt.Errorf("insert certification: %w", err)
	}
	return nil
}

// TopByXP ranks agents by XP descending.
func (s *PostgresStore) TopByXP(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("training: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit = clampLeaderboardLimit(limit)
	progress := pgIdent(s.schema, "training_progress")

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, xp
		   FROM `+progress+`
		  ORDER BY xp DESC, user_id ASC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.XP); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
