package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is recorded in metadata on first migration.
const SchemaVersion = "1"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS usage_snapshots (
			id               INTEGER PRIMARY KEY,
			ts_ms            INTEGER NOT NULL,
			cycle_id         TEXT NOT NULL DEFAULT '',
			total_quota      INTEGER NOT NULL DEFAULT 0,
			used_quota       INTEGER NOT NULL DEFAULT 0,
			remaining_quota  INTEGER NOT NULL DEFAULT 0,
			usage_percentage REAL NOT NULL DEFAULT 0,
			limits_json      TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("create usage_snapshots: %w", err)
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_snapshots_ts ON usage_snapshots(ts_ms DESC)`); err != nil {
		return fmt.Errorf("index usage_snapshots: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_events (
			id         INTEGER PRIMARY KEY,
			cycle_id   TEXT NOT NULL DEFAULT '',
			ts_ms      INTEGER NOT NULL,
			trigger    TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			kind       TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("create refresh_events: %w", err)
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_refresh_events_ts ON refresh_events(ts_ms DESC)`); err != nil {
		return fmt.Errorf("index refresh_events: %w", err)
	}

	v, err := d.GetMeta("schema_version")
	if err != nil {
		return err
	}
	if v == "" {
		return d.SetMeta("schema_version", SchemaVersion)
	}
	return nil
}

func (d *DB) InsertUsageSnapshot(s UsageSnapshot) error {
	limits, err := json.Marshal(s.Limits)
	if err != nil {
		return fmt.Errorf("encode limits: %w", err)
	}
	_, err = d.sql.Exec(`
		INSERT INTO usage_snapshots (
			ts_ms, cycle_id, total_quota, used_quota, remaining_quota, usage_percentage, limits_json
		) VALUES (?,?,?,?,?,?,?)`,
		s.TsMs, s.CycleID, s.TotalQuota, s.UsedQuota, s.RemainingQuota, s.UsagePercentage, string(limits),
	)
	return err
}

// GetUsageSnapshots returns up to limit snapshots, newest first.
func (d *DB) GetUsageSnapshots(limit int) ([]UsageSnapshot, error) {
	rows, err := d.sql.Query(`
		SELECT id, ts_ms, cycle_id, total_quota, used_quota, remaining_quota, usage_percentage, limits_json
		FROM usage_snapshots ORDER BY ts_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UsageSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// PruneUsageSnapshots deletes all but the newest keep snapshots.
func (d *DB) PruneUsageSnapshots(keep int) error {
	_, err := d.sql.Exec(`
		DELETE FROM usage_snapshots WHERE id NOT IN (
			SELECT id FROM usage_snapshots ORDER BY ts_ms DESC, id DESC LIMIT ?
		)`, keep)
	return err
}

func (d *DB) InsertRefreshEvent(e RefreshEvent) error {
	ts := e.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO refresh_events (cycle_id, ts_ms, trigger, event_type, kind, detail) VALUES (?,?,?,?,?,?)`,
		e.CycleID, ts.UnixMilli(), e.Trigger, e.EventType, e.Kind, e.Detail,
	)
	return err
}

func (d *DB) GetRefreshEvents(limit int) ([]RefreshEvent, error) {
	rows, err := d.sql.Query(
		`SELECT id, cycle_id, ts_ms, trigger, event_type, kind, detail
		 FROM refresh_events
		 ORDER BY ts_ms DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RefreshEvent
	for rows.Next() {
		var e RefreshEvent
		var ts int64
		if err := rows.Scan(&e.ID, &e.CycleID, &ts, &e.Trigger, &e.EventType, &e.Kind, &e.Detail); err != nil {
			return nil, err
		}
		e.Ts = time.UnixMilli(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (d *DB) PruneRefreshEvents(keep int) error {
	_, err := d.sql.Exec(`
		DELETE FROM refresh_events WHERE id NOT IN (
			SELECT id FROM refresh_events ORDER BY ts_ms DESC, id DESC LIMIT ?
		)`, keep)
	return err
}

func (d *DB) SetMeta(key, value string) error {
	_, err := d.sql.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?,?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.sql.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*UsageSnapshot, error) {
	var s UsageSnapshot
	var limits string
	if err := row.Scan(
		&s.ID, &s.TsMs, &s.CycleID,
		&s.TotalQuota, &s.UsedQuota, &s.RemainingQuota, &s.UsagePercentage,
		&limits,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(limits), &s.Limits); err != nil {
		return nil, fmt.Errorf("decode limits: %w", err)
	}
	return &s, nil
}
