// Package duckdb persists tick outcomes for the history API.
//
// One row is written per tick: readings that were present, the sensor
// status, and the read error text when a tick failed. The live ring buffer
// forgets; this table is what /api/history, the status socket and the
// snapshot manager read back.
package duckdb

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/piezodash/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every history statement.
const DefaultQueryTimeout = 10 * time.Second

// Store is the sample history table behind a single DuckDB handle. Writes
// take mu exclusively so CHECKPOINT for snapshots sees a quiet database.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// StoreOption tunes a Store at open time.
type StoreOption func(*Store)

// WithQueryTimeout overrides DefaultQueryTimeout. Non-positive values are
// ignored.
func WithQueryTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.QueryTimeout = d
		}
	}
}

// NewStore opens the history database at dbPath, creating its directory,
// and brings the samples schema up to date. An empty dbPath keeps history
// in memory for the life of the process; such a store cannot be
// snapshotted.
func NewStore(dbPath string, opts ...StoreOption) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, dbPath: dbPath, QueryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle. Pending InsertBuffer batches must be
// flushed first.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the history file on disk, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.dbPath
}
