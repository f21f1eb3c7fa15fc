package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable wraps every driver-level failure so callers can tell
// storage outages apart from "not found" results, which are (nil, nil).
var ErrStorageUnavailable = errors.New("storage unavailable")

// DB wraps the SQLite connection for the instance's wabiz.db.
type DB struct {
	*sql.DB
	now   func() time.Time
	newID func() string
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Transactions begin IMMEDIATE so a read followed by a write waits on the
// busy timeout instead of failing the lock upgrade.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, now: time.Now, newID: uuid.NewString}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
