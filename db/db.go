// ABOUTME: Database connection management and initialization
// ABOUTME: Opens the SQLite credential and log store in WAL mode at an XDG path
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where the server keeps its store when no -db-path flag
// is given.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "rc-unified-crm", "extension.db")
}

func OpenDatabase(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// Single connection avoids "database is locked" under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
