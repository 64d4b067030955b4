package watermark

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS watermarks (
	scope_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type sqliteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a node-local watermark database.
func OpenSQLite(ctx context.Context, path string, logger logging.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, storeError("create watermark dir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError("open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, storeError("migrate sqlite", err)
	}
	return newGuarded("sqlite", &sqliteDB{db: db}, logger), nil
}

func (s *sqliteDB) get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM watermarks WHERE scope_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (s *sqliteDB) put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO watermarks (scope_key, payload, version, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(scope_key) DO UPDATE SET
	payload = excluded.payload,
	version = excluded.version,
	updated_at = excluded.updated_at
`, key, string(value), PayloadVersion, time.Now().UnixMilli())
	return err
}

func (s *sqliteDB) del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watermarks WHERE scope_key = ?`, key)
	return err
}

func (s *sqliteDB) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
