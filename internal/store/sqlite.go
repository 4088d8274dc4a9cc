package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cadence/internal/schedule"
	logx "cadence/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the SQLite-backed schedule store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) FindDueSchedules(ctx context.Context, now time.Time, lead time.Duration) ([]*schedule.Schedule, error) {
	cutoff := now.Add(lead).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.id
		FROM schedules s
		JOIN schedule_items i ON i.schedule_id = s.id
		WHERE s.is_active = 1
		  AND i.status = ?
		  AND i.scheduled_for <= ?
		ORDER BY s.created_at`,
		string(schedule.StatusPending), cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.loadMany(ctx, ids)
}

func (s *sqliteStore) FindActiveSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM schedules WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.loadMany(ctx, ids)
}

func (s *sqliteStore) loadMany(ctx context.Context, ids []string) ([]*schedule.Schedule, error) {
	out := make([]*schedule.Schedule, 0, len(ids))
	for _, id := range ids {
		sch, err := s.Load(ctx, id)
		if err != nil {
			// A schedule deleted between the id query and the load is
			// not an error for the sweep.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, sch)
	}
	return out, nil
}

func (s *sqliteStore) Load(ctx context.Context, id string) (*schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, topic, timezone, frequency, slots,
		       active_start, active_end, is_active, created_at, updated_at
		FROM schedules WHERE id = ?`, id)

	var (
		sch       schedule.Schedule
		slotsJSON string
		start     int64
		end       sql.NullInt64
		created   int64
		updated   int64
	)
	err := row.Scan(&sch.ID, &sch.OwnerID, &sch.Topic, &sch.Timezone,
		&sch.Pattern.Frequency, &slotsJSON, &start, &end, &sch.IsActive, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(slotsJSON), &sch.Pattern.Slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", id, err)
	}
	sch.Active.Start = time.UnixMilli(start).UTC()
	if end.Valid {
		sch.Active.End = time.UnixMilli(end.Int64).UTC()
	}
	sch.CreatedAt = time.UnixMilli(created).UTC()
	sch.UpdatedAt = time.UnixMilli(updated).UTC()

	items, err := s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sch.Items = items
	return &sch, nil
}

func (s *sqliteStore) loadItems(ctx context.Context, scheduleID string) ([]schedule.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT description, key_points, scheduled_for, status,
		       result_ref, failure_message, processing_at, created_at, updated_at
		FROM schedule_items WHERE schedule_id = ? ORDER BY position`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []schedule.Item
	for rows.Next() {
		var (
			it         schedule.Item
			keyPoints  sql.NullString
			due        int64
			resultRef  sql.NullString
			failMsg    sql.NullString
			processing sql.NullInt64
			created    int64
			updated    int64
		)
		if err := rows.Scan(&it.Description, &keyPoints, &due, &it.Status,
			&resultRef, &failMsg, &processing, &created, &updated); err != nil {
			return nil, err
		}
		if keyPoints.Valid && keyPoints.String != "" {
			if err := json.Unmarshal([]byte(keyPoints.String), &it.KeyPoints); err != nil {
				return nil, fmt.Errorf("decode key points: %w", err)
			}
		}
		it.ScheduledFor = time.UnixMilli(due).UTC()
		it.ResultRef = resultRef.String
		it.FailureMessage = failMsg.String
		if processing.Valid {
			it.ProcessingAt = time.UnixMilli(processing.Int64).UTC()
		}
		it.CreatedAt = time.UnixMilli(created).UTC()
		it.UpdatedAt = time.UnixMilli(updated).UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, sch *schedule.Schedule) error {
	if sch == nil {
		return errors.New("nil schedule")
	}
	if err := sch.Validate(); err != nil {
		return err
	}

	slotsJSON, err := json.Marshal(sch.Pattern.Slots)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (id, owner_id, topic, timezone, frequency, slots,
		                       active_start, active_end, is_active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		    topic = excluded.topic,
		    timezone = excluded.timezone,
		    frequency = excluded.frequency,
		    slots = excluded.slots,
		    active_start = excluded.active_start,
		    active_end = excluded.active_end,
		    is_active = excluded.is_active,
		    updated_at = excluded.updated_at`,
		sch.ID, sch.OwnerID, sch.Topic, sch.Timezone, string(sch.Pattern.Frequency), string(slotsJSON),
		sch.Active.Start.UnixMilli(), nullMilli(sch.Active.End), boolInt(sch.IsActive),
		sch.CreatedAt.UnixMilli(), sch.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_items WHERE schedule_id = ?`, sch.ID); err != nil {
		return err
	}
	for i := range sch.Items {
		it := &sch.Items[i]
		var keyPoints any
		if len(it.KeyPoints) > 0 {
			b, err := json.Marshal(it.KeyPoints)
			if err != nil {
				return err
			}
			keyPoints = string(b)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_items (schedule_id, position, description, key_points,
			                            scheduled_for, status, result_ref, failure_message,
			                            processing_at, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			sch.ID, i, it.Description, keyPoints,
			it.ScheduledFor.UnixMilli(), string(it.Status), nullStr(it.ResultRef), nullStr(it.FailureMessage),
			nullMilli(it.ProcessingAt), it.CreatedAt.UnixMilli(), it.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// Items go via ON DELETE CASCADE; issue an explicit sweep as well in
	// case foreign keys are off for this connection.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM schedule_items WHERE schedule_id = ?`, id)
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
