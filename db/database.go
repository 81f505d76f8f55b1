// db/database.go
package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// InitDB opens the sqlite database at path and creates tables if needed.
func InitDB(path string, logger *zap.Logger) (*sql.DB, error) {
	logger = logger.With(zap.String("path", path))
	logger.Info("Initializing SQLite database")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Database file not found, will be created")
	}

	d, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; serialize through a single connection
	d.SetMaxOpenConns(1)

	if err = d.Ping(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(d, logger); err != nil {
		d.Close()
		return nil, err
	}

	logger.Info("Database initialized successfully")
	return d, nil
}

func migrate(d *sql.DB, logger *zap.Logger) error {
	createSettingsSQL := `
  CREATE TABLE IF NOT EXISTS settings (
      key TEXT PRIMARY KEY,
      value TEXT NOT NULL,
      updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
  );`
	if _, err := d.Exec(createSettingsSQL); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	createRunsSQL := `
  CREATE TABLE IF NOT EXISTS runs (
      workflow_id TEXT PRIMARY KEY,
      request TEXT,
      status TEXT NOT NULL DEFAULT 'UNKNOWN',
      step INTEGER NOT NULL DEFAULT 0,
      directives TEXT,
      initial_prompt TEXT,
      advice TEXT,
      final_prompt TEXT,
      error_details TEXT,
      created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
      updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
  );`
	if _, err := d.Exec(createRunsSQL); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	// commit_hash arrived with prompt library publishing
	exists, err := columnExists(d, "runs", "commit_hash")
	if err != nil {
		return err
	}
	if !exists {
		logger.Info("Adding column 'commit_hash' to 'runs' table")
		if _, err := d.Exec("ALTER TABLE runs ADD COLUMN commit_hash TEXT;"); err != nil {
			return fmt.Errorf("failed to add commit_hash column: %w", err)
		}
	}
	return nil
}

func columnExists(d *sql.DB, table, column string) (bool, error) {
	rows, err := d.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, fmt.Errorf("failed to query table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info row: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
