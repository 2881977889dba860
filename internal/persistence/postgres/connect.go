package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	// registers the "postgres" driver sqlx.Connect dials through
	_ "github.com/lib/pq"
)

// Connect opens a pooled connection to Postgres. Grounded on the
// teacher's infrastructure/db.Connect shape, adapted from database/sql
// to sqlx since every repo here scans through sqlx.Rows.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}
