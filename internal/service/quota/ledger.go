package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mindvault/internal/models"
)

// Ledger tracks per-user daily message counts against role limits. The
// counter rolls over lazily: whenever the stored date differs from the
// current day it is treated as zero, and Increment persists the rollover
// together with the new count. There is no background reset job.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Allowed reports whether the user may send another message today. Roles
// with no daily limit configured always pass.
func (l *Ledger) Allowed(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, errors.New("invalid user id")
	}
	var (
		count int
		date  string
		limit int
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT u.messages_sent_today, u.last_message_date, r.daily_message_limit
		 FROM users u JOIN roles r ON r.name = u.role_name
		 WHERE u.id = ?`, userID,
	).Scan(&count, &date, &limit)
	if err != nil {
		return false, fmt.Errorf("load quota: %w", err)
	}
	if limit <= 0 {
		return true, nil
	}
	if date != today() {
		count = 0
	}
	return count < limit, nil
}

// Increment performs the date rollover if needed and bumps the counter,
// persisting both fields in one statement. Persistence failures are fatal
// to the request; there are no retries.
func (l *Ledger) Increment(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		count int
		date  string
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT messages_sent_today, last_message_date FROM users WHERE id = ?`, userID,
	).Scan(&count, &date); err != nil {
		return fmt.Errorf("load quota: %w", err)
	}
	day := today()
	if date != day {
		count = 0
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET messages_sent_today = ?, last_message_date = ? WHERE id = ?`,
		count+1, day, userID,
	); err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return tx.Commit()
}

// RoleFor loads the limit bundle attached to the user.
func (l *Ledger) RoleFor(ctx context.Context, userID int64) (*models.Role, error) {
	var role models.Role
	err := l.db.QueryRowContext(ctx,
		`SELECT r.name, r.max_active_sessions, r.daily_message_limit, r.session_duration_hours,
		        r.test_message_limit, r.test_duration_hours
		 FROM users u JOIN roles r ON r.name = u.role_name
		 WHERE u.id = ?`, userID,
	).Scan(&role.Name, &role.MaxActiveSessions, &role.DailyMessageLimit, &role.SessionDurationHours,
		&role.TestMessageLimit, &role.TestDurationHours)
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	return &role, nil
}

func today() string {
	return time.Now().UTC().Format(models.QuotaDateLayout)
}
