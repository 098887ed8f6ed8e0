// Package devicestore persists per-device finder state: saved properties,
// the disclaimer flag and, with cookie consent, the last filter state.
package devicestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/joeblew999/cagp/internal/filter"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS saved_properties (
  device_id  TEXT NOT NULL,
  opa_id     TEXT NOT NULL,
  saved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (device_id, opa_id)
);
CREATE TABLE IF NOT EXISTS devices (
  device_id        TEXT PRIMARY KEY,
  disclaimer_seen  INTEGER NOT NULL DEFAULT 0,
  consent          INTEGER NOT NULL DEFAULT 0,
  filters          TEXT,
  updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ErrNoConsent is returned when filters are saved for a device that has not
// accepted cookies.
var ErrNoConsent = errors.New("cookie consent not given")

type DB struct {
	sql *sql.DB
}

// Saved is the saved-property list of one device.
type Saved struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create device store directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create device tables: %w", err)
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func (d *DB) ensureDevice(ctx context.Context, device string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT OR IGNORE INTO devices (device_id) VALUES ($1)`, device)
	return err
}

// SaveProperty adds opaID to the device's saved list.
func (d *DB) SaveProperty(ctx context.Context, device, opaID string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT OR IGNORE INTO saved_properties (device_id, opa_id) VALUES ($1, $2)`, device, opaID)
	return err
}

// RemoveProperty removes opaID from the device's saved list.
func (d *DB) RemoveProperty(ctx context.Context, device, opaID string) error {
	_, err := d.sql.ExecContext(ctx,
		`DELETE FROM saved_properties WHERE device_id = $1 AND opa_id = $2`, device, opaID)
	return err
}

// SavedProperties returns the device's saved list, oldest first.
func (d *DB) SavedProperties(ctx context.Context, device string) (Saved, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT opa_id FROM saved_properties WHERE device_id = $1 ORDER BY saved_at, rowid`, device)
	if err != nil {
		return Saved{}, err
	}
	defer rows.Close()

	s := Saved{IDs: []string{}}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Saved{}, err
		}
		s.IDs = append(s.IDs, id)
	}
	s.Count = len(s.IDs)
	return s, rows.Err()
}

// DisclaimerSeen reports whether the device has dismissed the disclaimer.
func (d *DB) DisclaimerSeen(ctx context.Context, device string) (bool, error) {
	var seen int
	err := d.sql.QueryRowContext(ctx,
		`SELECT disclaimer_seen FROM devices WHERE device_id = $1`, device).Scan(&seen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return seen == 1, err
}

// MarkDisclaimerSeen records that the disclaimer was dismissed.
func (d *DB) MarkDisclaimerSeen(ctx context.Context, device string) error {
	if err := d.ensureDevice(ctx, device); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx,
		`UPDATE devices SET disclaimer_seen = 1, updated_at = CURRENT_TIMESTAMP WHERE device_id = $1`, device)
	return err
}

// SetConsent records the device's cookie consent. Withdrawing consent
// deletes any stored filter state.
func (d *DB) SetConsent(ctx context.Context, device string, consent bool) error {
	if err := d.ensureDevice(ctx, device); err != nil {
		return err
	}
	q := `UPDATE devices SET consent = 1, updated_at = CURRENT_TIMESTAMP WHERE device_id = $1`
	if !consent {
		q = `UPDATE devices SET consent = 0, filters = NULL, updated_at = CURRENT_TIMESTAMP WHERE device_id = $1`
	}
	_, err := d.sql.ExecContext(ctx, q, device)
	return err
}

// Consent reports whether the device accepted cookies.
func (d *DB) Consent(ctx context.Context, device string) (bool, error) {
	var c int
	err := d.sql.QueryRowContext(ctx,
		`SELECT consent FROM devices WHERE device_id = $1`, device).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return c == 1, err
}

// SaveFilters stores the device's filter state. It fails with ErrNoConsent
// unless consent was given.
func (d *DB) SaveFilters(ctx context.Context, device string, st filter.State) error {
	ok, err := d.Consent(ctx, device)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoConsent
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	_, err = d.sql.ExecContext(ctx,
		`UPDATE devices SET filters = $1, updated_at = CURRENT_TIMESTAMP WHERE device_id = $2`, string(b), device)
	return err
}

// LoadFilters returns the stored filter state. ok is false when none is
// stored.
func (d *DB) LoadFilters(ctx context.Context, device string) (filter.State, bool, error) {
	var raw sql.NullString
	err := d.sql.QueryRowContext(ctx,
		`SELECT filters FROM devices WHERE device_id = $1 AND consent = 1`, device).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	st := filter.State{}
	if err := json.Unmarshal([]byte(raw.String), &st); err != nil {
		return nil, false, fmt.Errorf("decode filters: %w", err)
	}
	return st, true, nil
}
