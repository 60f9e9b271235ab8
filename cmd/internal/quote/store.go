package quote

import "context"

// Store persists quote requests and answers rate estimate lookups.
type Store interface {
	CreateRequest(ctx context.Context, req Request) (Request, error)
	// MatchEstimates returns rate rows satisfying every provided
	// criterion, cheapest first.
	MatchEstimates(ctx context.Context, c Criteria, limit int) ([]Estimate, error)
	Close() error
}

const (
	defaultEstimateLimit = 10
	maxEstimateLimit     = 50
)

func clampEstimateLimit(limit int) int {
	if limit <= 0 {
		return defaultEstimateLimit
	}
	if limit > maxEstimateLimit {
		return maxEstimateLimit
	}
	return limit
}
