// Package store is the hub's SQLite persistence: site configurations,
// registered targets and the attempt history.
package store

import (
	"database/sql"

	"github.com/hazyhaar/chatcast/dbopen"
)

// Store is the hub database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
