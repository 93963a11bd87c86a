// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kb persists sources, triplets, and MCQ records, and manages
// the pending review queue. It is the only package that touches the
// database; every mutation runs in its own short transaction and no
// transaction is held across an AI call.
package kb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/mcq-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "mcq.db"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a source, triplet, or MCQ record lookup by
	// ID matched no row.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a write was rejected because the input
	// violates a record invariant (option count, unknown status).
	ErrValidation = errors.New("validation failed")
)

// Store manages the mcq-engine SQLite database.
type Store struct {
	db       *sql.DB
	dataDir  string
	pageSize int
}

// NewStore opens or creates the SQLite database at dataDir/index/mcq.db
// and creates the schema if it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 6
	}

	s := &Store{
		db:       db,
		dataDir:  cfg.DataDir,
		pageSize: pageSize,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PageSize returns the configured pending-queue page size.
func (s *Store) PageSize() int {
	return s.pageSize
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			year INTEGER,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_sources (
			source_id INTEGER PRIMARY KEY REFERENCES sources(id),
			queued_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS triplets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			action TEXT NOT NULL,
			object TEXT NOT NULL,
			relation TEXT,
			source_id INTEGER NOT NULL REFERENCES sources(id),
			context_sentences TEXT,
			schema_valid INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			UNIQUE(subject, action, object, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triplets_source ON triplets(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_triplets_status ON triplets(status)`,
		`CREATE TABLE IF NOT EXISTS mcq_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stem TEXT,
			question TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_option INTEGER NOT NULL,
			source_id INTEGER NOT NULL REFERENCES sources(id),
			triplet_id INTEGER REFERENCES triplets(id),
			visual_prompt TEXT,
			visual_triplet TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mcq_source ON mcq_records(source_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}
