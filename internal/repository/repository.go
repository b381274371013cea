// Package repository implements sqlite persistence for imports, learned
// mappings, lots and stock movements. Write methods accept an optional
// *sql.Tx so services can span several repositories in one transaction.
package repository

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientQuantity is returned when a consumption would drive a
	// lot's remaining quantity negative. The caller picks the fallback
	// policy (partial draw, next lot); nothing is changed here.
	ErrInsufficientQuantity = errors.New("requested quantity exceeds remaining lot quantity")
)

// dbtx is the common surface of *sql.DB and *sql.Tx.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// on returns tx when given, otherwise the base connection.
func on(db *sql.DB, tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return db
}

// IsUniqueViolation reports whether err is a sqlite unique-constraint
// failure. The partial unique indexes on business_key and content_hash
// surface commit races through this.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
