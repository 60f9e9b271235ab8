package training

import "context"

// ProgressStore persists gamification state.
type ProgressStore interface {
	// GetProgress returns the user's progress, or a zero-valued record
	// (Level 1) when none exists yet.
	GetProgress(ctx context.Context, userID string) (Progress, error)
	// SaveProgress upserts the record.
	SaveProgress(ctx context.Context, p Progress) error
	// UnlockAchievement records the badge; it reports true only the
	// first time the (user, code) pair is inserted.
	UnlockAchievement(ctx context.Context, userID, code string) (bool, error)
	// Achievements returns the user's unlocked badges.
	Achievements(ctx context.Context, userID string) ([]Achievement, error)
	// IssueCertification records a passing course completion.
	IssueCertification(ctx context.Context, cert Certification) error
	// TopByXP is the store-backed leaderboard fallback.
	TopByXP(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Close() error
}

// Leaderboard ranks agents by XP total.
type Leaderboard interface {
	// Record sets the user's score to their current XP total.
	Record(ctx context.Context, userID string, xp int64) error
	// Top returns the highest-ranked entries.
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func clampLeaderboardLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}
