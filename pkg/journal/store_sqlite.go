package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal_events (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  view INTEGER NOT NULL,
		  type TEXT NOT NULL,
		  at_ms INTEGER NOT NULL,
		  uri TEXT NOT NULL DEFAULT '',
		  title TEXT NOT NULL DEFAULT '',
		  status INTEGER NOT NULL DEFAULT 0,
		  message TEXT NOT NULL DEFAULT '',
		  data TEXT NOT NULL DEFAULT '',
		  event_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS journal_events_by_view
		  ON journal_events(view, id);`,
		`CREATE TABLE IF NOT EXISTS journal_views (
		  view INTEGER PRIMARY KEY,
		  first_seen_ms INTEGER NOT NULL,
		  last_activity_ms INTEGER NOT NULL,
		  event_count INTEGER NOT NULL DEFAULT 0,
		  last_uri TEXT NOT NULL DEFAULT '',
		  last_title TEXT NOT NULL DEFAULT '',
		  detached INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS journal_views_by_last_activity
		  ON journal_views(last_activity_ms DESC, view ASC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UnixMilli()
	rec = normalizeRecord(rec, now)
	if rec.Type == "" {
		return 0, errors.New("sqlite journal: record type is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO journal_events (view, type, at_ms, uri, title, status, message, data, event_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(rec.View), rec.Type, rec.AtMs, rec.URI, rec.Title, rec.Status, rec.Message, rec.Data, rec.Raw)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite journal: insert event")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "sqlite journal: last insert id")
	}

	detached := int64(0)
	if rec.Type == string(events.EventTypeDetached) {
		detached = 1
	}

	// Keep the per-view index in sync with every append.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_views (view, first_seen_ms, last_activity_ms, event_count, last_uri, last_title, detached)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(view) DO UPDATE SET
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > journal_views.last_activity_ms THEN excluded.last_activity_ms
				ELSE journal_views.last_activity_ms
			END,
			event_count = journal_views.event_count + 1,
			last_uri = CASE
				WHEN excluded.last_uri <> '' THEN excluded.last_uri
				ELSE journal_views.last_uri
			END,
			last_title = CASE
				WHEN excluded.last_title <> '' THEN excluded.last_title
				ELSE journal_views.last_title
			END,
			detached = CASE
				WHEN excluded.detached = 1 THEN 1
				ELSE journal_views.detached
			END
	`, int64(rec.View), rec.AtMs, rec.AtMs, rec.URI, rec.Title, detached); err != nil {
		return 0, errors.Wrap(err, "sqlite journal: upsert view summary")
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) ListViews(ctx context.Context, limit int, sinceMs int64) ([]ViewSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT view, first_seen_ms, last_activity_ms, event_count, last_uri, last_title, detached
		FROM journal_views
	`
	args := make([]any, 0, 2)
	if sinceMs > 0 {
		query += ` WHERE last_activity_ms >= ?`
		args = append(args, sinceMs)
	}
	query += ` ORDER BY last_activity_ms DESC, view ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: list views")
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]ViewSummary, 0, limit)
	for rows.Next() {
		var (
			summary ViewSummary
			view    int64
			detach  int64
		)
		if err := rows.Scan(
			&view,
			&summary.FirstSeenMs,
			&summary.LastActivityMs,
			&summary.EventCount,
			&summary.LastURI,
			&summary.LastTitle,
			&detach,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan view summary")
		}
		summary.View = events.ViewHandle(view)
		summary.Detached = detach == 1
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate views")
	}
	return summaries, nil
}

func (s *SQLiteStore) Events(ctx context.Context, handle events.ViewHandle, sinceID int64, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, view, type, at_ms, uri, title, status, message, data, event_json
		FROM journal_events
		WHERE view = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, int64(handle), sinceID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: query events")
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec  Record
			view int64
		)
		if err := rows.Scan(
			&rec.ID,
			&view,
			&rec.Type,
			&rec.AtMs,
			&rec.URI,
			&rec.Title,
			&rec.Status,
			&rec.Message,
			&rec.Data,
			&rec.Raw,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan event")
		}
		rec.View = events.ViewHandle(view)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate events")
	}
	return records, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, handle events.ViewHandle) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM journal_events WHERE view = ?`, int64(handle))
	if err != nil {
		return 0, errors.Wrap(err, "sqlite journal: delete events")
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "sqlite journal: rows affected")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM journal_views WHERE view = ?`, int64(handle)); err != nil {
		return 0, errors.Wrap(err, "sqlite journal: delete view summary")
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// SQLiteDSNForFile builds a DSN for a file-backed journal. WAL keeps readers
// from blocking the writer; busy_timeout avoids transient SQLITE_BUSY.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite journal: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
