// Package store provides PostgreSQL persistence for projects and their
// safeguard policies. Each project owns one policy document and one API key
// for the hosted check endpoint.
package store

import "database/sql"

// Store provides access to the PostgreSQL database for project and policy CRUD.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
