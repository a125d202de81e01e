package glossary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DatabaseFile is the name of the phrase database inside the model storage path.
const DatabaseFile = "glossary.db"

const createPhrasesTable = `
CREATE TABLE IF NOT EXISTS phrases (
    source_lang TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source_lang, target_lang, source)
)`

// ErrEmptyPhrase is returned when a phrase or its translation has no words.
var ErrEmptyPhrase = errors.New("empty phrase")

// Store is the SQLite phrase database.
type Store struct {
	db *sql.DB
}

// Open opens the phrase database at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open glossary: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createPhrasesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create phrases table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts or replaces the translation of source for a language pair.
// The source phrase is stored in its normalized form, words separated by
// single spaces.
func (s *Store) Add(ctx context.Context, sourceLang, targetLang, source, target string) error {
	key := normalize(source)
	target = strings.TrimSpace(target)
	if key == "" || target == "" {
		return ErrEmptyPhrase
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phrases (source_lang, target_lang, source, target)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_lang, target_lang, source)
		DO UPDATE SET target = excluded.target, updated_at = CURRENT_TIMESTAMP`,
		sourceLang, targetLang, key, target,
	)
	if err != nil {
		return fmt.Errorf("insert phrase: %w", err)
	}
	return nil
}

// Load reads every phrase into an in-memory table.
func (s *Store) Load(ctx context.Context) (*Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_lang, target_lang, source, target FROM phrases`)
	if err != nil {
		return nil, fmt.Errorf("load phrases: %w", err)
	}
	defer rows.Close()

	tbl := NewTable()
	for rows.Next() {
		var sourceLang, targetLang, source, target string
		if err := rows.Scan(&sourceLang, &targetLang, &source, &target); err != nil {
			return nil, fmt.Errorf("scan phrase: %w", err)
		}
		tbl.Add(sourceLang, targetLang, source, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phrases: %w", err)
	}
	return tbl, nil
}
