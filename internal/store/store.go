package store

import (
	"context"
	"errors"

	"github.com/seantiz/polyglot/internal/model"
)

// ErrInvalidTransition is returned when a translation status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// TranslationStats holds aggregate translation statistics.
type TranslationStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByTarget map[string]int `json:"count_by_target_language"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the translation history.
type Store interface {
	CreateTranslation(ctx context.Context, t *model.Translation) error
	GetTranslation(ctx context.Context, id string) (*model.Translation, error)
	ListTranslations(ctx context.Context, limit, offset int) ([]*model.Translation, int, error)
	FinishTranslation(ctx context.Context, t *model.Translation) error
	GetTranslationStats(ctx context.Context) (*TranslationStats, error)
	Close() error
}
