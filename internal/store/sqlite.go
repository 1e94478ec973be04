package store

import (
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/lox/wxarchive/internal/ingest"
)

// Store is the sqlite database behind the query cache, imported forecasts and
// the sync audit log. The caller owns the *sql.DB and closes it.
type Store struct {
	db  *sqlx.DB
	dir *ingest.Dir

	// mu serializes cache materialization so two queries never load the same
	// month at once.
	mu sync.Mutex
}

func New(db *sql.DB, dir *ingest.Dir) *Store {
	return &Store{db: sqlx.NewDb(db, "sqlite"), dir: dir}
}

// Dir returns the raw export directory the cache is built from.
func (s *Store) Dir() *ingest.Dir {
	return s.dir
}
