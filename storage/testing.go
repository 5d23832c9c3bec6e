package storage

import "github.com/jmoiron/sqlx"

// WrapForTest builds a DB around an already-open *sqlx.DB (typically backed
// by go-sqlmock) without going through Open's pgxpool dial. Test-only.
func WrapForTest(db *sqlx.DB) *DB {
	return &DB{DB: db}
}
