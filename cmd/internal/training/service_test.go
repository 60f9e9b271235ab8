package training

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/notify"
)

// recordingBus captures published notifications.
type recordingBus struct {
	mu        sync.Mutex
	published []notify.Notification
	fail      bool
}

func (b *recordingBus) Publish(_ context.Context, n notify.Notification) error {
	if b.fail {
		return errors.New("broker down")
	}
	b.mu.Lock()
	b.published = append(b.published, n)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) byType(typ string) []notify.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []notify.Notification
	for _, n := range b.published {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func newTestService(bus notify.Bus) (*Service, *InMemoryStore) {
	store := NewInMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(log, store, NewStoreLeaderboard(store), bus)
	return svc, store
}

func atDay(svc *Service, year int, month time.Month, day int) {
	svc.now = func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestService_ApplyRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(nil)

	if _, err := svc.Apply(context.Background(), Event{Kind: EventLessonCompleted}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("missing userId err = %v, want ErrInvalidEvent", err)
	}
	if _, err := svc.Apply(context.Background(), Event{UserID: "u1", Kind: "ate_lunch"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("unknown kind err = %v, want ErrInvalidEvent", err)
	}
}

func TestService_ApplyAwardsXPAndFirstBadge(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(nil)

	res, err := svc.Apply(context.Background(), Event{UserID: "u1", Kind: EventLessonCompleted})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.XPAwarded != 50 || res.Progress.XP != 50 {
		t.Fatalf("xp = awarded %d total %d, want 50/50", res.XPAwarded, res.Progress.XP)
	}
	if res.Progress.Level != 1 || res.LeveledUp {
		t.Fatalf("level = %d leveledUp=%v, want 1/false", res.Progress.Level, res.LeveledUp)
	}
	if res.Progress.CurrentStreak != 1 {
		t.Fatalf("streak = %d, want 1", res.Progress.CurrentStreak)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0] != AchFirstLesson {
		t.Fatalf("badges = %v, want [%s]", res.NewBadges, AchFirstLesson)
	}
}

func TestService_LevelUpPublishesNotification(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	svc, store := newTestService(bus)

	if err := store.SaveProgress(context.Background(), Progress{UserID: "u1", XP: 450, Level: 1, EventCount: 3}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	res, err := svc.Apply(context.Background(), Event{UserID: "u1", Kind: EventLessonCompleted})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Progress.XP != 500 || res.Progress.Level != 2 || !res.LeveledUp {
		t.Fatalf("progress = %+v leveledUp=%v, want xp=500 level=2", res.Progress, res.LeveledUp)
	}

	ups := bus.byType("level_up")
	if len(ups) != 1 || ups[0].UserID != "u1" {
		t.Fatalf("level_up notifications = %+v", ups)
	}
}

func TestService_StreakArithmetic(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(nil)
	ctx := context.Background()
	ev := Event{UserID: "u1", Kind: EventDailyLogin}

	atDay(svc, 2026, time.March, 1)
	res, err := svc.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if res.Progress.CurrentStreak != 1 {
		t.Fatalf("day 1 streak = %d, want 1", res.Progress.CurrentStreak)
	}

	// Second event the same day does not advance the streak.
	res, err = svc.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("day 1 again: %v", err)
	}
	if res.Progress.CurrentStreak != 1 {
		t.Fatalf("same-day streak = %d, want 1", res.Progress.CurrentStreak)
	}

	atDay(svc, 2026, time.March, 2)
	res, err = svc.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("day 2: %v", err)
	}
	if res.Progress.CurrentStreak != 2 {
		t.Fatalf("consecutive streak = %d, want 2", res.Progress.CurrentStreak)
	}

	// A gap resets to 1 but the longest streak is retained.
	atDay(svc, 2026, time.March, 5)
	res, err = svc.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("day 5: %v", err)
	}
	if res.Progress.CurrentStreak != 1 {
		t.Fatalf("post-gap streak = %d, want 1", res.Progress.CurrentStreak)
	}
	if res.Progress.LongestStreak != 2 {
		t.Fatalf("longest streak = %d, want 2", res.Progress.LongestStreak)
	}
}

func TestService_StreakBadgeAtSevenDays(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	svc, _ := newTestService(bus)
	ctx := context.Background()
	ev := Event{UserID: "u1", Kind: EventDailyLogin}

	var last Result
	for day := 1; day <= 7; day++ {
		atDay(svc, 2026, time.April, day)
		res, err := svc.Apply(ctx, ev)
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		last = res
	}

	if last.Progress.CurrentStreak != 7 {
		t.Fatalf("streak = %d, want 7", last.Progress.CurrentStreak)
	}
	found := false
	for _, b := range last.NewBadges {
		if b == AchStreak7 {
			found = true
		}
	}
	if !found {
		t.Fatalf("day 7 badges = %v, want %s", last.NewBadges, AchStreak7)
	}

	unlocks := bus.byType("achievement_unlocked")
	if len(unlocks) == 0 {
		t.Fatalf("no achievement_unlocked notifications published")
	}
}

func TestService_BadgesUnlockOnce(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(nil)
	ctx := context.Background()

	if err := store.SaveProgress(ctx, Progress{UserID: "u1", XP: 990, Level: 2, EventCount: 5}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	res, err := svc.Apply(ctx, Event{UserID: "u1", Kind: EventQuizPassed, Score: 90})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := map[string]bool{}
	for _, b := range res.NewBadges {
		got[b] = true
	}
	if !got[AchXP1000] {
		t.Fatalf("badges = %v, want %s", res.NewBadges, AchXP1000)
	}

	res, err = svc.Apply(ctx, Event{UserID: "u1", Kind: EventQuizPassed, Score: 90})
	if err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	for _, b := range res.NewBadges {
		if b == AchXP1000 {
			t.Fatalf("badge %s unlocked twice", AchXP1000)
		}
	}
}

func TestService_CertificationRequiresPassingScore(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(nil)
	ctx := context.Background()

	res, err := svc.Apply(ctx, Event{UserID: "u1", Kind: EventCourseCompleted, CourseID: "life-101", Score: 85})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Certified {
		t.Fatalf("passing completion not certified")
	}
	certs := store.Certifications()
	if len(certs) != 1 || certs[0].CourseID != "life-101" || certs[0].Score != 85 {
		t.Fatalf("certifications = %+v", certs)
	}

	res, err = svc.Apply(ctx, Event{UserID: "u2", Kind: EventCourseCompleted, CourseID: "life-101", Score: 70})
	if err != nil {
		t.Fatalf("Apply below passing: %v", err)
	}
	if res.Certified {
		t.Fatalf("failing score certified")
	}
	if certs := store.Certifications(); len(certs) != 1 {
		t.Fatalf("failing completion recorded a certification")
	}
}

func TestService_PublishFailureDoesNotFailEvent(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{fail: true}
	svc, store := newTestService(bus)
	ctx := context.Background()

	if err := store.SaveProgress(ctx, Progress{UserID: "u1", XP: 450, Level: 1, EventCount: 1}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	res, err := svc.Apply(ctx, Event{UserID: "u1", Kind: EventLessonCompleted})
	if err != nil {
		t.Fatalf("Apply with failing bus: %v", err)
	}
	if !res.LeveledUp {
		t.Fatalf("expected level up despite publish failure")
	}
}

func TestService_TopRanksByXP(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(nil)
	ctx := context.Background()

	seed := []Progress{
		{UserID: "bronze", XP: 100, Level: 1},
		{UserID: "gold", XP: 2000, Level: 3},
		{UserID: "silver", XP: 900, Level: 2},
	}
	for _, p := range seed {
		if err := store.SaveProgress(ctx, p); err != nil {
			t.Fatalf("seed %s: %v", p.UserID, err)
		}
	}

	top, err := svc.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top = %d entries, want 2", len(top))
	}
	if top[0].UserID != "gold" || top[0].Rank != 1 || top[1].UserID != "silver" {
		t.Fatalf("top = %+v", top)
	}
}

func TestLevelForXP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		xp   int64
		want int
	}{
		{-5, 1},
		{0, 1},
		{499, 1},
		{500, 2},
		{1500, 3},
		{4999, 4},
		{5000, 5},
		{8000, 6},
		{11999, 6},
		{12000, 7},
	}
	for _, tc := range cases {
		if got := LevelForXP(tc.xp); got != tc.want {
			t.Fatalf("LevelForXP(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}
