package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/polyglot/internal/model"

	_ "modernc.org/sqlite"
)

const createTranslationsTable = `
CREATE TABLE IF NOT EXISTS translations (
    id              TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    model           TEXT NOT NULL,
    source_language TEXT NOT NULL,
    target_language TEXT NOT NULL,
    input_hash      TEXT NOT NULL,
    input_chars     INTEGER NOT NULL,
    output_chars    INTEGER,
    error           TEXT NOT NULL DEFAULT '',
    duration_ms     INTEGER,
    created_at      DATETIME NOT NULL,
    finished_at     DATETIME
)`

const createTranslationsIndex = `
CREATE INDEX IF NOT EXISTS translations_created_at ON translations (created_at DESC)`

const translationColumns = `id, status, model, source_language, target_language,
	input_hash, input_chars, output_chars, error, duration_ms, created_at, finished_at`

// ErrNotFound is returned when a translation is not found.
var ErrNotFound = errors.New("translation not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createTranslationsTable, createTranslationsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create translations schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranslation(row scanner) (*model.Translation, error) {
	t := &model.Translation{}
	err := row.Scan(
		&t.ID, &t.Status, &t.Model, &t.SourceLanguage, &t.TargetLanguage,
		&t.InputHash, &t.InputChars, &t.OutputChars, &t.Error, &t.DurationMS,
		&t.CreatedAt, &t.FinishedAt,
	)
	return t, err
}

// CreateTranslation inserts a new translation record.
func (s *SQLiteStore) CreateTranslation(ctx context.Context, t *model.Translation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translations (`+translationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, t.Model, t.SourceLanguage, t.TargetLanguage,
		t.InputHash, t.InputChars, t.OutputChars, t.Error, t.DurationMS,
		t.CreatedAt, t.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert translation: %w", err)
	}
	return nil
}

// GetTranslation retrieves a translation by ID.
func (s *SQLiteStore) GetTranslation(ctx context.Context, id string) (*model.Translation, error) {
	t, err := scanTranslation(s.db.QueryRowContext(ctx,
		`SELECT `+translationColumns+` FROM translations WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get translation: %w", err)
	}
	return t, nil
}

// ListTranslations returns a paginated list of translations ordered by
// created_at DESC, along with the total count of all translations.
func (s *SQLiteStore) ListTranslations(ctx context.Context, limit, offset int) ([]*model.Translation, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM translations").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count translations: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+translationColumns+` FROM translations
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	var translations []*model.Translation
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan translation: %w", err)
		}
		translations = append(translations, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate translations: %w", err)
	}

	return translations, total, nil
}

// FinishTranslation moves a running translation to its terminal state and
// records its outcome. Returns ErrNotFound for an unknown id and
// ErrInvalidTransition if the record is not running or t.Status is not terminal.
func (s *SQLiteStore) FinishTranslation(ctx context.Context, t *model.Translation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM translations WHERE id = ?", t.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read translation status: %w", err)
	}
	if !model.ValidTransition(current, t.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, t.Status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE translations
		SET status = ?, output_chars = ?, error = ?, duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		t.Status, t.OutputChars, t.Error, t.DurationMS, t.FinishedAt, t.ID,
	); err != nil {
		return fmt.Errorf("update translation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit translation: %w", err)
	}
	return nil
}

// GetTranslationStats aggregates the history.
func (s *SQLiteStore) GetTranslationStats(ctx context.Context) (*TranslationStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &TranslationStats{
		CountByStatus: make(map[string]int),
		CountByTarget: make(map[string]int),
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM translations").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count translations: %w", err)
	}

	if err := countBy(ctx, tx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := countBy(ctx, tx, "target_language", stats.CountByTarget); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM translations WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills dst with row counts grouped by column. column is never user input.
func countBy(ctx context.Context, tx *sql.Tx, column string, dst map[string]int) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM translations GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		dst[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}
