package database

import (
	"database/sql"
	"fmt"
	stdlog "log"

	"github.com/username/taxdeclaration/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

const createTableStatement = `
	CREATE TABLE IF NOT EXISTS declaration_tasks (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		query_hint TEXT,
		lookup_mode TEXT NOT NULL,
		result_json TEXT,
		error TEXT,
		document TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_declaration_tasks_finished_at ON declaration_tasks(finished_at);
	`

// InitDB opens the database at databasePath into DB, exiting the process on failure.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to initialise database at %s: %v", databasePath, err)
	}
	DB = db
}

// Open opens an sqlite database and ensures the schema exists.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY between workers.
	db.SetMaxOpenConns(1)

	logger.Get().Info("Checking database migrations", "databasePath", databasePath)
	if err := migrateTaskTable(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(createTableStatement); err != nil {
		logger.Get().Error("failed to create tables", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	logger.Get().Info("Database tables ensured/created.")
	return db, nil
}

// migrateTaskTable adds columns introduced after the first release to an
// existing declaration_tasks table.
func migrateTaskTable(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='declaration_tasks'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			logger.Get().Info("'declaration_tasks' table does not exist, no migration needed as table will be created.")
			return nil
		}
		return fmt.Errorf("checking for 'declaration_tasks' table: %w", err)
	}

	rows, err := db.Query("PRAGMA table_info(declaration_tasks)")
	if err != nil {
		return fmt.Errorf("querying table schema for 'declaration_tasks': %w", err)
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scanning column info for 'declaration_tasks': %w", err)
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating over column info for 'declaration_tasks': %w", err)
	}

	for column, ddl := range map[string]string{
		"document":    "ALTER TABLE declaration_tasks ADD COLUMN document TEXT",
		"query_hint":  "ALTER TABLE declaration_tasks ADD COLUMN query_hint TEXT",
		"finished_at": "ALTER TABLE declaration_tasks ADD COLUMN finished_at TIMESTAMP",
	} {
		if columnExists[column] {
			continue
		}
		if _, err := db.Exec(ddl); err != nil {
			logger.Get().Error("Error adding column to 'declaration_tasks' table", "column", column, "error", err)
			continue
		}
		logger.Get().Info("Added column to 'declaration_tasks' table", "column", column)
	}
	return nil
}
