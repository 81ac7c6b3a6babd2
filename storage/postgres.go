package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const PSQLBatchSize = 5000

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*SQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		query := `DROP TABLE IF EXISTS feed`
		for _, t := range feedTables {
			query += `; DROP TABLE IF EXISTS ` + t.name
		}
		if _, err = db.Exec(query); err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	s, err := newSQLStorage(db, dialect{
		name:       "postgres",
		timestamp:  "TIMESTAMPTZ",
		real:       "DOUBLE PRECISION",
		rebind:     numberedPlaceholders,
		bulkInsert: psqlCopy,
		batchSize:  PSQLBatchSize,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Loads rows with COPY.
func psqlCopy(tx *sql.Tx, t table, rows [][]any) error {
	stmt, err := tx.Prepare(pq.CopyIn(t.name, t.columns...))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.Exec(row...)
		if err != nil {
			return fmt.Errorf("COPY %s: %w", t.name, err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}
