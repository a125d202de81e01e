package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/polyglot/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestTranslation() *model.Translation {
	return &model.Translation{
		ID:             model.NewID(),
		Status:         model.StatusRunning,
		Model:          "glossary",
		SourceLanguage: "en_US",
		TargetLanguage: "fr_FR",
		InputHash:      "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		InputChars:     5,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func finish(t *testing.T, s *SQLiteStore, tr *model.Translation, status string, durationMS int) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	out := 7
	tr.Status = status
	tr.DurationMS = &durationMS
	tr.FinishedAt = &now
	if status == model.StatusCompleted {
		tr.OutputChars = &out
	} else {
		tr.Error = "engine error: boom"
	}
	if err := s.FinishTranslation(context.Background(), tr); err != nil {
		t.Fatalf("FinishTranslation: %v", err)
	}
}

func TestCreateAndGetTranslation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := makeTestTranslation()

	if err := s.CreateTranslation(ctx, tr); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}

	got, err := s.GetTranslation(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}

	if got.ID != tr.ID {
		t.Errorf("ID = %q, want %q", got.ID, tr.ID)
	}
	if got.Status != model.StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusRunning)
	}
	if got.Model != tr.Model || got.SourceLanguage != tr.SourceLanguage || got.TargetLanguage != tr.TargetLanguage {
		t.Errorf("got %+v, want model/languages of %+v", got, tr)
	}
	if got.InputHash != tr.InputHash || got.InputChars != tr.InputChars {
		t.Errorf("input = (%q, %d), want (%q, %d)", got.InputHash, got.InputChars, tr.InputHash, tr.InputChars)
	}
	if !got.CreatedAt.Equal(tr.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tr.CreatedAt)
	}
	if got.OutputChars != nil || got.DurationMS != nil || got.FinishedAt != nil {
		t.Errorf("running record has outcome fields set: %+v", got)
	}
}

func TestGetTranslationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTranslation(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListTranslationsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr := makeTestTranslation()
		tr.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Second)
		if err := s.CreateTranslation(ctx, tr); err != nil {
			t.Fatalf("CreateTranslation[%d]: %v", i, err)
		}
	}

	page, total, err := s.ListTranslations(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListTranslations: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}

	last, _, err := s.ListTranslations(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListTranslations last page: %v", err)
	}
	if len(last) != 1 {
		t.Errorf("len(last page) = %d, want 1", len(last))
	}
}

func TestListTranslationsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr := makeTestTranslation()
		tr.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.CreateTranslation(ctx, tr); err != nil {
			t.Fatalf("CreateTranslation[%d]: %v", i, err)
		}
	}

	list, _, err := s.ListTranslations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListTranslations: %v", err)
	}

	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Errorf("translations not newest first: [%d]=%v > [%d]=%v",
				i, list[i].CreatedAt, i-1, list[i-1].CreatedAt)
		}
	}
}

func TestListTranslationsEmpty(t *testing.T) {
	s := newTestStore(t)

	list, total, err := s.ListTranslations(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListTranslations: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if list != nil {
		t.Errorf("list = %v, want nil", list)
	}
}

func TestFinishTranslation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := makeTestTranslation()
	if err := s.CreateTranslation(ctx, tr); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}

	finish(t, s, tr, model.StatusCompleted, 42)

	got, err := s.GetTranslation(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.DurationMS == nil || *got.DurationMS != 42 {
		t.Errorf("DurationMS = %v, want 42", got.DurationMS)
	}
	if got.OutputChars == nil || *got.OutputChars != 7 {
		t.Errorf("OutputChars = %v, want 7", got.OutputChars)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestFinishTranslationFailedRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := makeTestTranslation()
	if err := s.CreateTranslation(ctx, tr); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}

	finish(t, s, tr, model.StatusFailed, 3)

	got, err := s.GetTranslation(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if got.Status != model.StatusFailed || got.Error != "engine error: boom" {
		t.Errorf("got (%q, %q), want failed with error", got.Status, got.Error)
	}
}

func TestFinishTranslationNotFound(t *testing.T) {
	s := newTestStore(t)
	tr := makeTestTranslation()
	tr.Status = model.StatusCompleted

	if err := s.FinishTranslation(context.Background(), tr); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFinishTranslationTerminalCannotTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := makeTestTranslation()
	if err := s.CreateTranslation(ctx, tr); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}
	finish(t, s, tr, model.StatusCompleted, 1)

	tr.Status = model.StatusFailed
	if err := s.FinishTranslation(ctx, tr); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}

	fresh := makeTestTranslation()
	if err := s.CreateTranslation(ctx, fresh); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}
	if err := s.FinishTranslation(ctx, fresh); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("running -> running err = %v, want ErrInvalidTransition", err)
	}
}

func TestGetTranslationStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr := makeTestTranslation()
		if err := s.CreateTranslation(ctx, tr); err != nil {
			t.Fatalf("CreateTranslation: %v", err)
		}
		if i < 2 {
			finish(t, s, tr, model.StatusCompleted, 100+i*100)
		}
	}

	tr := makeTestTranslation()
	tr.TargetLanguage = "de_DE"
	if err := s.CreateTranslation(ctx, tr); err != nil {
		t.Fatalf("CreateTranslation (de): %v", err)
	}
	finish(t, s, tr, model.StatusFailed, 300)

	stats, err := s.GetTranslationStats(ctx)
	if err != nil {
		t.Fatalf("GetTranslationStats: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", stats.CountByStatus[model.StatusCompleted])
	}
	if stats.CountByStatus[model.StatusRunning] != 1 {
		t.Errorf("running count = %d, want 1", stats.CountByStatus[model.StatusRunning])
	}
	if stats.CountByStatus[model.StatusFailed] != 1 {
		t.Errorf("failed count = %d, want 1", stats.CountByStatus[model.StatusFailed])
	}
	if stats.CountByTarget["fr_FR"] != 3 || stats.CountByTarget["de_DE"] != 1 {
		t.Errorf("CountByTarget = %v, want fr_FR:3 de_DE:1", stats.CountByTarget)
	}
	if stats.AvgDurationMS != 200 {
		t.Errorf("AvgDurationMS = %f, want 200", stats.AvgDurationMS)
	}
}

func TestGetTranslationStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetTranslationStats(context.Background())
	if err != nil {
		t.Fatalf("GetTranslationStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("AvgDurationMS = %f, want 0", stats.AvgDurationMS)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("First open: %v", err)
	}
	if err := s1.CreateTranslation(context.Background(), makeTestTranslation()); err != nil {
		t.Fatalf("CreateTranslation: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Second open: %v", err)
	}
	defer s2.Close()

	_, total, err := s2.ListTranslations(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListTranslations: %v", err)
	}
	if total != 1 {
		t.Errorf("total after reopen = %d, want 1", total)
	}
}
