package storage

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

	_ "modernc.org/sqlite"

	"alertbridge/internal/alert"
	logx "alertbridge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) ListActiveAlerts(ctx context.Context) ([]alert.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM active_alerts`)
	if err != nil {
		return nil, fmt.Errorf("storage: list active alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("storage: scan active alert: %w", err)
		}
		rec, err := decodeRecord(id, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list active alerts: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) GetActiveAlert(ctx context.Context, fingerprint string) (alert.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM active_alerts WHERE id = ?`, fingerprint).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Record{}, false, nil
	}
	if err != nil {
		return alert.Record{}, false, fmt.Errorf("storage: get active alert: %w", err)
	}
	rec, err := decodeRecord(fingerprint, []byte(data))
	if err != nil {
		return alert.Record{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) HasActiveAlert(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM active_alerts WHERE id = ?`, fingerprint).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: has active alert: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) PutActiveAlert(ctx context.Context, rec alert.Record) error {
	if strings.TrimSpace(rec.Fingerprint) == "" {
		return ErrEmptyFingerprint
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: encode active alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_alerts(id, data) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		rec.Fingerprint, string(data),
	)
	if err != nil {
		return fmt.Errorf("storage: put active alert: %w", err)
	}
	return nil
}

func (s *sqliteStore) RemoveActiveAlert(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM active_alerts WHERE id = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("storage: remove active alert: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetMappedAlertID(ctx context.Context, eventID string) (string, bool, error) {
	var alertID string
	err := s.db.QueryRowContext(ctx,
		`SELECT alert_id FROM message_map WHERE event_id = ?`, eventID).Scan(&alertID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get mapping: %w", err)
	}
	return alertID, true, nil
}

func (s *sqliteStore) HasMapping(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM message_map WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: has mapping: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) PutMapping(ctx context.Context, eventID, alertID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_map(event_id, alert_id) VALUES(?,?)
		 ON CONFLICT(event_id) DO UPDATE SET alert_id=excluded.alert_id`,
		eventID, alertID,
	)
	if err != nil {
		return fmt.Errorf("storage: put mapping: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetLastSent(ctx context.Context, severity string) (int64, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sent FROM schedules WHERE severity = ?`, severity).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return NeverSent, nil
	}
	if err != nil {
		return NeverSent, fmt.Errorf("storage: get last sent: %w", err)
	}
	return ms, nil
}

func (s *sqliteStore) PutLastSent(ctx context.Context, severity string, unixMilli int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(severity, last_sent) VALUES(?,?)
		 ON CONFLICT(severity) DO UPDATE SET last_sent=excluded.last_sent`,
		severity, unixMilli,
	)
	if err != nil {
		return fmt.Errorf("storage: put last sent: %w", err)
	}
	return nil
}

// decodeRecord backfills the fingerprint from the row key so that records
// written before the fingerprint field existed still round-trip.
func decodeRecord(id string, data []byte) (alert.Record, error) {
	var rec alert.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return alert.Record{}, fmt.Errorf("storage: decode active alert %q: %w", id, err)
	}
	if rec.Fingerprint == "" {
		rec.Fingerprint = id
	}
	return rec, nil
}
