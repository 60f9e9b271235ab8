package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/notify"
)

// ErrInvalidEvent wraps event validation failures.
var ErrInvalidEvent = errors.New("training: invalid event")

// Result summarizes what one event changed.
type Result struct {
	Progress  Progress `json:"progress"`
	LeveledUp bool     `json:"leveledUp"`
	NewBadges []string `json:"newBadges,omitempty"`
	Certified bool     `json:"certified"`
	XPAwarded int64    `json:"xpAwarded"`
}

// Service applies gamification rules to reported events and publishes
// resulting notifications. Notification delivery is best-effort; a
// publish failure never fails the event itself.
type Service struct {
	log         *slog.Logger
	store       ProgressStore
	leaderboard Leaderboard
	bus         notify.Bus

	// now is injectable for streak arithmetic tests.
	now func() time.Time
}

// NewService constructs a training Service. leaderboard and bus may be
// nil; the corresponding side effects are skipped.
func NewService(log *slog.Logger, store ProgressStore, leaderboard Leaderboard, bus notify.Bus) *Service {
	return &Service{
		log:         log,
		store:       store,
		leaderboard: leaderboard,
		bus:         bus,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply processes one event: XP award, streak update, level
// recomputation, achievement checks, and certification issue for
// passing course completions.
func (s *Service) Apply(ctx context.Context, ev Event) (Result, error) {
	ev.UserID = strings.TrimSpace(ev.UserID)
	if ev.UserID == "" {
		return Result{}, fmt.Errorf("%w: missing userId", ErrInvalidEvent)
	}
	xp := XPForEvent(ev.Kind)
	if xp == 0 {
		return Result{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}

	p, err := s.store.GetProgress(ctx, ev.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("get progress: %w", err)
	}

	now := s.now()
	prevLevel := p.Level
	if prevLevel == 0 {
		prevLevel = 1
	}

	p.UserID = ev.UserID
	p.XP += xp
	p.EventCount++
	p.Level = LevelForXP(p.XP)
	applyStreak(&p, now)
	p.UpdatedAt = now

	res := Result{XPAwarded: xp}

	certified := false
	if ev.Kind == EventCourseCompleted && ev.CourseID != "" && ev.Score >= passingScore {
		if err := s.store.IssueCertification(ctx, Certification{
			UserID:   ev.UserID,
			CourseID: ev.CourseID,
			Score:    ev.Score,
			IssuedAt: now,
		}); err != nil {
			return Result{}, fmt.Errorf("issue certification: %w", err)
		}
		certified = true
	}

	badges, err := s.unlockEarned(ctx, p, certified)
	if err != nil {
		return Result{}, err
	}

	if err := s.store.SaveProgress(ctx, p); err != nil {
		return Result{}, fmt.Errorf("save progress: %w", err)
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Record(ctx, p.UserID, p.XP); err != nil {
			s.log.Error("training.leaderboard.fail", "user_id", p.UserID, "err", err)
		}
	}

	res.Progress = p
	res.LeveledUp = p.Level > prevLevel
	res.NewBadges = badges
	res.Certified = certified

	s.publishNotifications(ctx, res)

	s.log.Info("training.event.applied",
		"user_id", p.UserID, "kind", ev.Kind, "xp", p.XP, "level", p.Level,
		"streak", p.CurrentStreak, "badges", len(badges), "certified", certified,
	)
	return res, nil
}

// Progress returns the user's current gamification state.
func (s *Service) Progress(ctx context.Context, userID string) (Progress, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Progress{}, fmt.Errorf("%w: missing userId", ErrInvalidEvent)
	}
	return s.store.GetProgress(ctx, userID)
}

// Top returns the current leaderboard.
func (s *Service) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if s.leaderboard != nil {
		return s.leaderboard.Top(ctx, limit)
	}
	return s.store.TopByXP(ctx, limit)
}

// applyStreak updates streak counters from the UTC activity day:
// same-day events are a no-op, a consecutive day increments, any gap
// resets to 1.
func applyStreak(p *Progress, now time.Time) {
	day := now.Truncate(24 * time.Hour)
	last := p.LastActivityDay.Truncate(24 * time.Hour)

	switch {
	case p.LastActivityDay.IsZero():
		p.CurrentStreak = 1
	case day.Equal(last):
		// Already counted today.
	case day.Equal(last.Add(24 * time.Hour)):
		p.CurrentStreak++
	default:
		p.CurrentStreak = 1
	}

	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	p.LastActivityDay = day
}

// unlockEarned checks every threshold achievement against the updated
// progress and records the newly earned ones.
func (s *Service) unlockEarned(ctx context.Context, p Progress, certified bool) ([]string, error) {
	type check struct {
		code   string
		earned bool
	}
	checks := []check{
		{AchFirstLesson, p.EventCount >= 1},
		{AchStreak7, p.CurrentStreak >= 7},
		{AchStreak30, p.CurrentStreak >= 30},
		{AchXP1000, p.XP >= 1000},
		{AchXP10000, p.XP >= 10000},
		{AchCertified, certified},
	}

	var newBadges []string
	for _, c := range checks {
		if !c.earned {
			continue
		}
		fresh, err := s.store.UnlockAchievement(ctx, p.UserID, c.code)
		if err != nil {
			return nil, fmt.Errorf("unlock achievement %s: %w", c.code, err)
		}
		if fresh {
			newBadges = append(newBadges, c.code)
		}
	}
	return newBadges, nil
}

func (s *Service) publishNotifications(ctx context.Context, res Result) {
	if s.bus == nil {
		return
	}

	publish := func(n notify.Notification) {
		if err := s.bus.Publish(ctx, n); err != nil {
			s.log.Error("training.notify.fail", "user_id", n.UserID, "type", n.Type, "err", err)
		}
	}

	if res.LeveledUp {
		publish(notify.Notification{
			Type:   "level_up",
			UserID: res.Progress.UserID,
			Title:  "Level up",
			Body:   fmt.Sprintf("You reached level %d", res.Progress.Level),
		})
	}
	for _, code := range res.NewBadges {
		publish(notify.Notification{
			Type:   "achievement_unlocked",
			UserID: res.Progress.UserID,
			Title:  "Achievement unlocked",
			Body:   code,
		})
	}
}
