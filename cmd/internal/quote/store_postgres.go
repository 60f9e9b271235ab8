package quote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL. The pool is owned by
// the caller; Close is a no-op.
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
			return errors.New("quote: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("quote: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
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
		return nil, errors.New("quote: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// CreateRequest inserts the request and returns it with the
// database-assigned creation timestamp.
func (s *PostgresStore) CreateRequest(ctx context.Context, req Request) (Request, error) {
	if s == nil || s.pool == nil {
		return Request{}, errors.New("quote: nil store")
	}
	if req.Reference == "" {
		return Request{}, errors.New("quote: missing reference")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	requests := pgIdent(s.schema, "quote_requests")

	if err := s.pool.QueryRow(ctx,
		`INSERT INTO `+requests+` (
		     reference, product_type, state, age, coverage_amount, tobacco_use,
		     first_name, last_name, email, phone
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		   RETURNING created_at`,
		req.Reference, req.ProductType, req.State, req.Age, req.CoverageAmount, req.TobaccoUse,
		req.FirstName, req.LastName, req.Email, req.Phone,
	).Scan(&req.CreatedAt); err != nil {
		return Request{}, fmt.Errorf("insert quote request: %w", err)
	}

	return req, nil
}

// MatchEstimates builds one WHERE condition per provided criterion and
// returns matching rate rows ordered by premium ascending.
func (s *PostgresStore) MatchEstimates(ctx context.Context, c Criteria, limit int) ([]Estimate, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("quote: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit = clampEstimateLimit(limit)
	rates := pgIdent(s.schema, "rate_estimates")

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if c.ProductType != "" {
		conds = append(conds, "product_type = "+arg(c.ProductType))
	}
	if c.State != "" {
		conds = append(conds, "state = "+arg(c.State))
	}
	if c.Age > 0 {
		p := arg(c.Age)
		conds = append(conds, "min_age <= "+p, "max_age >= "+p)
	}
	if c.Tobacco != nil {
		conds = append(conds, "tobacco_class = "+arg(tobaccoClassFor(*c.Tobacco)))
	}
	if c.CoverageAmount > 0 {
		p := arg(c.CoverageAmount)
		conds = append(conds, "min_coverage <= "+p, "max_coverage >= "+p)
	}

	q := `SELECT id, carrier, product_type, state, min_age, max_age, tobacco_class,
	             min_coverage, max_coverage, monthly_premium_cents, term_years
	        FROM ` + rates
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY monthly_premium_cents ASC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Estimate, 0, limit)
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(
			&e.ID, &e.Carrier, &e.ProductType, &e.State, &e.MinAge, &e.MaxAge,
			&e.TobaccoClass, &e.MinCoverage, &e.MaxCoverage, &e.MonthlyPremiumCents, &e.TermYears,
		); err != nil {
			return nil, err
		}
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
