// Package training implements the agent LMS gamification rules: XP
// awards with levels, daily streaks, achievements, and certifications.
// The rules are arithmetic over stored counters; persistence and the
// leaderboard live behind small interfaces.
package training

import "time"

// Progress is one agent's gamification state.
type Progress struct {
	UserID        string    `json:"userId"`
	XP            int64     `json:"xp"`
	Level         int       `json:"level"`
	CurrentStreak int       `json:"currentStreak"`
	LongestStreak int       `json:"longestStreak"`
	// LastActivityDay is the UTC day (truncated) of the most recent
	// XP-earning event; it drives streak arithmetic.
	LastActivityDay time.Time `json:"lastActivityDay"`
	EventCount      int64     `json:"eventCount"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Event is one XP-earning activity reported by the LMS front end.
type Event struct {
	UserID   string `json:"userId"`
	Kind     string `json:"kind"`
	CourseID string `json:"courseId,omitempty"`
	// Score applies to quiz/exam kinds, 0-100.
	Score int `json:"score,omitempty"`
}

// Event kinds with fixed XP values.
const (
	EventLessonCompleted = "lesson_completed"
	EventQuizPassed      = "quiz_passed"
	EventCourseCompleted = "course_completed"
	EventDailyLogin      = "daily_login"
)

// XP values per event kind.
const (
	xpLesson = 50
	xpQuiz   = 100
	xpCourse = 250
	xpLogin  = 10
)

// Achievement codes.
const (
	AchFirstLesson = "first_lesson"
	AchStreak7     = "streak_7"
	AchStreak30    = "streak_30"
	AchXP1000      = "xp_1000"
	AchXP10000     = "xp_10000"
	AchCertified   = "certified"
)

// Achievement is an unlocked badge.
type Achievement struct {
	UserID     string    `json:"userId"`
	Code       string    `json:"code"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// Certification is issued when a course is completed with a passing
// exam score.
type Certification struct {
	UserID   string    `json:"userId"`
	CourseID string    `json:"courseId"`
	Score    int       `json:"score"`
	IssuedAt time.Time `json:"issuedAt"`
}

// passingScore is the minimum exam score for a certification.
const passingScore = 80

// levelThresholds holds the cumulative XP required to reach each level;
// index i is the XP floor of level i+1. Beyond the table, each level
// costs levelStep more.
var levelThresholds = []int64{0, 500, 1500, 3000, 5000, 8000}

const levelStep = 4000

// LevelForXP returns the level an XP total corresponds to (minimum 1).
func LevelForXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	level := 1
	for i := 1; i < len(levelThresholds); i++ {
		if xp >= levelThresholds[i] {
			level = i + 1
		}
	}
	if top := levelThresholds[len(levelThresholds)-1]; xp >= top {
		level = len(levelThresholds) + int((xp-top)/levelStep)
	}
	return level
}

// XPForEvent returns the XP value of an event kind (0 for unknown kinds).
func XPForEvent(kind string) int64 {
	switch kind {
	case EventLessonCompleted:
		return xpLesson
	case EventQuizPassed:
		return xpQuiz
	case EventCourseCompleted:
		return xpCourse
	case EventDailyLogin:
		return xpLogin
	}
	return 0
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	XP     int64  `json:"xp"`
}
