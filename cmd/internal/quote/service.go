package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Validation bounds for intake. Carrier rate tables do not quote
// outside these.
const (
	minQuoteAge = 18
	maxQuoteAge = 85
)

// ErrInvalidRequest wraps intake validation failures.
var ErrInvalidRequest = errors.New("quote: invalid request")

// Service validates intake, assigns reference numbers, and answers
// estimate lookups.
type Service struct {
	log   *slog.Logger
	store Store
}

// NewService constructs a quote Service.
func NewService(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store}
}

// Submit validates and persists a quote request, assigning its
// customer-facing reference.
func (s *Service) Submit(ctx context.Context, req Request) (Request, error) {
	if err := validateRequest(req); err != nil {
		return Request{}, err
	}

	req.Reference = uuid.NewString()
	req.State = strings.ToUpper(strings.TrimSpace(req.State))

	out, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return Request{}, fmt.Errorf("create quote request: %w", err)
	}

	s.log.Info("quote.request.created", "reference", out.Reference, "product_type", out.ProductType, "state", out.State)
	return out, nil
}

// Estimates returns matching rate rows for the given criteria,
// cheapest first.
func (s *Service) Estimates(ctx context.Context, c Criteria, limit int) ([]Estimate, error) {
	if c.Age < 0 {
		return nil, fmt.Errorf("%w: negative age", ErrInvalidRequest)
	}
	if c.CoverageAmount < 0 {
		return nil, fmt.Errorf("%w: negative coverage", ErrInvalidRequest)
	}
	c.State = strings.ToUpper(strings.TrimSpace(c.State))

	return s.store.MatchEstimates(ctx, c, limit)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.ProductType) == "" {
		return fmt.Errorf("%w: missing productType", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.State) == "" {
		return fmt.Errorf("%w: missing state", ErrInvalidRequest)
	}
	if req.Age < minQuoteAge || req.Age > maxQuoteAge {
		return fmt.Errorf("%w: age out of range [%d, %d]", ErrInvalidRequest, minQuoteAge, maxQuoteAge)
	}
	if req.CoverageAmount <= 0 {
		return fmt.Errorf("%w: coverageAmount must be positive", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRequest)
	}
	if !strings.Contains(req.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}
	return nil
}
