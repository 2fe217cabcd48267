package models

import "time"

// User is an account holder. Quota counters live on the user row and roll
// over lazily when the stored date falls behind the current day.
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	PasswordHash      string    `json:"-"`
	RoleName          string    `json:"role"`
	MessagesSentToday int       `json:"messages_sent_today"`
	LastMessageDate   string    `json:"last_message_date"`
	CreatedAt         time.Time `json:"created_at"`
}

// QuotaDateLayout is the storage format of User.LastMessageDate.
const QuotaDateLayout = "2006-01-02"

// Role bundles the per-user limits. A zero value means "no limit" for
// counters and "never expires" for durations. The Test* pair applies to
// psychological-test sessions only.
type Role struct {
	Name                 string `json:"name"`
	MaxActiveSessions    int    `json:"max_active_sessions"`
	DailyMessageLimit    int    `json:"daily_message_limit"`
	SessionDurationHours int    `json:"session_duration_hours"`
	TestMessageLimit     int    `json:"test_message_limit"`
	TestDurationHours    int    `json:"test_duration_hours"`
}

// DefaultRoleName is assigned at registration.
const DefaultRoleName = "default"
