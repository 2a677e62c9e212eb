package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// ResetDB drops every table and recreates the schema from scratch.
func ResetDB(db *sql.DB) error {
	for i := len(tableNames) - 1; i >= 0; i-- {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + tableNames[i]); err != nil {
			return fmt.Errorf("drop %s: %w", tableNames[i], err)
		}
	}
	return InitDB(db)
}
