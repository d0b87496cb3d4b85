package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/pdf2text/internal/common"
)

// Open creates an in-memory SQLite database. The data lives only as long as
// the returned handle; name isolates independent ledgers in one process.
func Open(ctx context.Context, name string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "pdf2text-" + uuid.NewString()
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	logger.Info("opening ledger database", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open ledger database", "error", err)
		return nil, err
	}
	// a single connection keeps the memory database alive and serializes writes
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		logger.Error("ledger migration failed", "error", err)
		return nil, err
	}
	logger.Info("ledger database ready")
	return db, nil
}

// Close closes the database gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	logger.Info("closing ledger database")
	if err := db.Close(); err != nil {
		logger.Error("failed to close ledger database", "error", err)
	}
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging ledger database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Error("ledger ping failed", "error", err)
		return err
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	id              TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL,
	max_pages       INTEGER NOT NULL,
	pages_processed INTEGER NOT NULL DEFAULT 0,
	total_pages     INTEGER NOT NULL DEFAULT 0,
	truncated       INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	error_message   TEXT,
	artifact_path   TEXT,
	engine          TEXT NOT NULL DEFAULT '',
	elapsed_ms      INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversions_created_at ON conversions (created_at DESC);
`

// Migrate creates the ledger tables if needed.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return common.WrapError(err, "migrate")
	}
	return nil
}
