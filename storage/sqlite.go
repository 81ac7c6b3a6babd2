package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const SQLiteBatchSize = 5000

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// Opens a SQLite backed storage. Without config, the database is
// kept in memory.
func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = filepath.Join(directory, "gtfs.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: is a database of its own
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	s, err := newSQLStorage(db, dialect{
		name:       "sqlite",
		timestamp:  "TIMESTAMP",
		real:       "REAL",
		rebind:     func(query string) string { return query },
		bulkInsert: sqliteInsert,
		batchSize:  SQLiteBatchSize,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Inserts rows with a prepared statement inside the transaction.
func sqliteInsert(tx *sql.Tx, t table, rows [][]any) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.name,
		strings.Join(t.columns, ", "),
		placeholders,
	))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.Exec(row...)
		if err != nil {
			return err
		}
	}
	return nil
}
