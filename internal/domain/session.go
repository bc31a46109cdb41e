package domain

import "time"

// MaxSessionSeconds caps a single recorded session at one day.
const MaxSessionSeconds = 86400

// MeetingSession is one user's stay in a room.
type MeetingSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	RoomID          string    `json:"room_id"`
	RoomTitle       string    `json:"room_title,omitempty"`
	JoinedAt        time.Time `json:"joined_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Private         bool      `json:"private"`
	CreatedAt       time.Time `json:"created_at"`
}

type RecordSessionRequest struct {
	RoomID          string    `json:"room_id" binding:"required,max=64"`
	RoomTitle       string    `json:"room_title" binding:"max=200"`
	JoinedAt        time.Time `json:"joined_at" binding:"required"`
	DurationSeconds int       `json:"duration_seconds" binding:"required"`
	Private         bool      `json:"private"`
}

type ListSessionsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

type ListSessionsResponse struct {
	Sessions   []MeetingSession `json:"sessions"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// DailyMinutes is one point of the dashboard chart.
type DailyMinutes struct {
	Date    string `json:"date"` // YYYY-MM-DD in the caller's offset
	Minutes int    `json:"minutes"`
}

// SessionDay is the per-day aggregate returned by the session store.
type SessionDay struct {
	Day     string
	Seconds int
}

type TodoCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

// SessionTotals is the all-time aggregate of a user's sessions.
type SessionTotals struct {
	Count   int   `json:"count"`
	Seconds int64 `json:"seconds"`
}

// Stats is the lightweight summary served by GET /api/stats.
type Stats struct {
	TotalSessions         int     `json:"total_sessions"`
	TotalFocusMinutes     int     `json:"total_focus_minutes"`
	AverageSessionMinutes float64 `json:"average_session_minutes"`
	CurrentStreak         int     `json:"current_streak"`
}

type Dashboard struct {
	Stats
	Daily       []DailyMinutes `json:"daily"`
	Todos       TodoCounts     `json:"todos"`
	FriendCount int            `json:"friend_count"`
	GeneratedAt time.Time      `json:"generated_at"`
}
