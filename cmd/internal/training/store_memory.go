package training

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a dev/test ProgressStore. It doubles as the
// leaderboard fallback via TopByXP.
type InMemoryStore struct {
	mu           sync.Mutex
	progress     map[string]Progress
	achievements map[string]map[string]Achievement // user id -> code -> achievement
	certs        []Certification
}

// NewInMemoryStore constructs an empty in-memory ProgressStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		progress:     make(map[string]Progress),
		achievements: make(map[string]map[string]Achievement),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// GetProgress returns the stored record or a fresh Level-1 record.
func (s *InMemoryStore) GetProgress(ctx context.Context, userID string) (Progress, error) {
	if err := ctx.Err(); err != nil {
		return Progress{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.progress[userID]; ok {
		return p, nil
	}
	return Progress{UserID: userID, Level: 1}, nil
}

// SaveProgress upserts the record.
func (s *InMemoryStore) SaveProgress(ctx context.Context, p Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.progress[p.UserID] = p
	s.mu.Unlock()
	return nil
}

// UnlockAchievement records the badge once per (user, code).
func (s *InMemoryStore) UnlockAchievement(ctx context.Context, userID, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.achievements[userID]
	if m == nil {
		m = make(map[string]Achievement)
		s.achievements[userID] = m
	}
	if _, ok := m[code]; ok {
		return false, nil
	}
	m[code] = Achievement{UserID: userID, Code: code, UnlockedAt: time.Now().UTC()}
	return true, nil
}

// Achievements returns the user's unlocked badges, oldest first.
func (s *InMemoryStore) Achievements(ctx context.Context, userID string) ([]Achievement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.achievements[userID]
	out := make([]Achievement, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.Before(out[j].UnlockedAt) })
	return out, nil
}

// IssueCertification records a passing course completion.
func (s *InMemoryStore) IssueCertification(ctx context.Context, cert Certification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.certs = append(s.certs, cert)
	s.mu.Unlock()
	return nil
}

// Certifications returns a snapshot of issued certifications. Test helper.
func (s *InMemoryStore) Certifications() []Certification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Certification(nil), s.certs...)
}

// TopByXP ranks stored progress by XP descending.
func (s *InMemoryStore) TopByXP(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit = clampLeaderboardLimit(limit)

	s.mu.Lock()
	all := make([]Progress, 0, len(s.progress))
	for _, p := range s.progress {
		all = append(all, p)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].XP != all[j].XP {
			return all[i].XP > all[j].XP
		}
		return all[i].UserID < all[j].UserID
	})
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]LeaderboardEntry, 0, len(all))
	for i, p := range all {
		out = append(out, LeaderboardEntry{Rank: i + 1, UserID: p.UserID, XP: p.XP})
	}
	return out, nil
}
