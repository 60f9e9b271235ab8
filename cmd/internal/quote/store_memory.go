package quote

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a dev/test Store. Matching mirrors the SQL
// conditions: every provided criterion must hold.
type InMemoryStore struct {
	mu       sync.Mutex
	requests []Request
	rates    []Estimate
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// SeedRates loads rate rows. Dev/test helper.
func (s *InMemoryStore) SeedRates(rates ...Estimate) {
	s.mu.Lock()
	s.rates = append(s.rates, rates...)
	s.mu.Unlock()
}

// CreateRequest records the request with an assigned timestamp.
func (s *InMemoryStore) CreateRequest(ctx context.Context, req Request) (Request, error) {
	if req.Reference == "" {
		return Request{}, errors.New("quote: missing reference")
	}
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}

	req.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	return req, nil
}

// Requests returns a snapshot of stored requests. Test helper.
func (s *InMemoryStore) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// MatchEstimates filters the seeded rates with the same semantics as
// the SQL matcher and returns them cheapest first.
func (s *InMemoryStore) MatchEstimates(ctx context.Context, c Criteria, limit int) ([]Estimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit = clampEstimateLimit(limit)

	s.mu.Lock()
	snap := append([]Estimate(nil), s.rates...)
	s.mu.Unlock()

	out := make([]Estimate, 0, limit)
	for _, e := range snap {
		if c.ProductType != "" && e.ProductType != c.ProductType {
			continue
		}
		if c.State != "" && e.State != c.State {
			continue
		}
		if c.Age > 0 && (e.MinAge > c.Age || e.MaxAge < c.Age) {
			continue
		}
		if c.Tobacco != nil && e.TobaccoClass != tobaccoClassFor(*c.Tobacco) {
			continue
		}
		if c.CoverageAmount > 0 && (e.MinCoverage > c.CoverageAmount || e.MaxCoverage < c.CoverageAmount) {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].MonthlyPremiumCents < out[j].MonthlyPremiumCents
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
