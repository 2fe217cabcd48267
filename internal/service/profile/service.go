package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mindvault/internal/models"
)

// Service stores the user's profile sub-records. One-to-one records get
// get-or-create-then-partial-update semantics; goals are an append-only
// collection.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the sub-record's set fields, or nil when the record does
// not exist yet. Absence is not an error.
func (s *Service) Get(ctx context.Context, userID int64, rec models.RecordSpec) (map[string]interface{}, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	cols := columnList(rec)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ?`, cols, rec.Table), userID)
	fields, err := scanRecord(rec, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", rec.Table, err)
	}
	return fields, nil
}

// Upsert creates the sub-record if missing, then merges the supplied
// fields in. Unset fields are left untouched. Returns the merged record.
func (s *Service) Upsert(ctx context.Context, userID int64, rec models.RecordSpec, fields map[string]interface{}) (map[string]interface{}, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE user_id = ?)`, rec.Table), userID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s: %w", rec.Table, err)
	}
	if !exists {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (user_id, created_at, updated_at) VALUES (?, ?, ?)`, rec.Table),
			userID, now, now,
		); err != nil {
			return nil, fmt.Errorf("create %s: %w", rec.Table, err)
		}
	}

	if len(fields) > 0 {
		sets := make([]string, 0, len(fields)+1)
		argv := make([]interface{}, 0, len(fields)+2)
		for _, def := range rec.Fields {
			val, ok := fields[def.Name]
			if !ok {
				continue
			}
			sets = append(sets, def.Name+" = ?")
			argv = append(argv, val)
		}
		sets = append(sets, "updated_at = ?")
		argv = append(argv, now, userID)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s WHERE user_id = ?`, rec.Table, strings.Join(sets, ", ")),
			argv...,
		); err != nil {
			return nil, fmt.Errorf("update %s: %w", rec.Table, err)
		}
	}

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = ?`, columnList(rec), rec.Table), userID)
	merged, err := scanRecord(rec, row)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", rec.Table, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", rec.Table, err)
	}
	return merged, nil
}

// CreateGoal appends a new goal row. Status defaults to active.
func (s *Service) CreateGoal(ctx context.Context, userID int64, fields map[string]interface{}) (map[string]interface{}, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if _, ok := fields["status"]; !ok {
		fields["status"] = "active"
	}
	now := time.Now().UTC()

	cols := []string{"user_id"}
	marks := []string{"?"}
	argv := []interface{}{userID}
	for _, def := range models.GoalRecord.Fields {
		val, ok := fields[def.Name]
		if !ok {
			continue
		}
		cols = append(cols, def.Name)
		marks = append(marks, "?")
		argv = append(argv, val)
	}
	cols = append(cols, "created_at")
	marks = append(marks, "?")
	argv = append(argv, now)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO goals (%s) VALUES (%s)`, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		argv...,
	)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("goal id: %w", err)
	}

	out := map[string]interface{}{"id": id, "created_at": now}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// ListGoals returns the user's goals, newest first.
func (s *Service) ListGoals(ctx context.Context, userID int64) ([]map[string]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %s, created_at FROM goals WHERE user_id = ? ORDER BY id DESC`, columnList(models.GoalRecord)),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []map[string]interface{}
	for rows.Next() {
		spec := models.GoalRecord
		dest := make([]interface{}, 0, len(spec.Fields)+2)
		var id int64
		var createdAt time.Time
		dest = append(dest, &id)
		holders := scanHolders(spec)
		dest = append(dest, holders...)
		dest = append(dest, &createdAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goal := holdersToMap(spec, holders)
		goal["id"] = id
		goal["created_at"] = createdAt
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// SaveClassification persists a psychological-test result onto the user's
// psychological profile.
func (s *Service) SaveClassification(ctx context.Context, userID int64, classification string) error {
	classification = strings.TrimSpace(classification)
	if classification == "" {
		return errors.New("classification is required")
	}
	for _, rec := range models.ProfileRecords {
		if rec.FieldByName(models.ClassificationField) == nil {
			continue
		}
		_, err := s.Upsert(ctx, userID, rec, map[string]interface{}{models.ClassificationField: classification})
		return err
	}
	return errors.New("no sub-record carries a classification field")
}

// ContextSummary aggregates the user's stored profile into a compact text
// block for the provider. Only set fields are included; empty sub-records
// are skipped entirely.
func (s *Service) ContextSummary(ctx context.Context, userID int64) (string, error) {
	var b strings.Builder
	for _, rec := range models.ProfileRecords {
		fields, err := s.Get(ctx, userID, rec)
		if err != nil {
			return "", err
		}
		if len(fields) == 0 {
			continue
		}
		parts := make([]string, 0, len(fields))
		for _, def := range rec.Fields {
			if val, ok := fields[def.Name]; ok {
				parts = append(parts, def.Name+": "+formatValue(val))
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.Trim(rec.Path, "/"), strings.Join(parts, "; "))
	}

	goals, err := s.ListGoals(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(goals) > 0 {
		var parts []string
		for _, g := range goals {
			title, _ := g["title"].(string)
			if title == "" {
				continue
			}
			if status, _ := g["status"].(string); status != "" {
				title += " (" + status + ")"
			}
			parts = append(parts, title)
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "goals: %s\n", strings.Join(parts, "; "))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func columnList(rec models.RecordSpec) string {
	cols := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		cols[i] = f.Name
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(rec models.RecordSpec, row scanner) (map[string]interface{}, error) {
	holders := scanHolders(rec)
	if err := row.Scan(holders...); err != nil {
		return nil, err
	}
	return holdersToMap(rec, holders), nil
}

func scanHolders(rec models.RecordSpec) []interface{} {
	holders := make([]interface{}, len(rec.Fields))
	for i, f := range rec.Fields {
		switch f.Kind {
		case models.FieldInteger:
			holders[i] = new(sql.NullInt64)
		case models.FieldNumber:
			holders[i] = new(sql.NullFloat64)
		default:
			holders[i] = new(sql.NullString)
		}
	}
	return holders
}

func holdersToMap(rec models.RecordSpec, holders []interface{}) map[string]interface{} {
	fields := make(map[string]interface{})
	for i, f := range rec.Fields {
		switch h := holders[i].(type) {
		case *sql.NullInt64:
			if h.Valid {
				fields[f.Name] = h.Int64
			}
		case *sql.NullFloat64:
			if h.Valid {
				fields[f.Name] = h.Float64
			}
		case *sql.NullString:
			if h.Valid && h.String != "" {
				fields[f.Name] = h.String
			}
		}
	}
	return fields
}
