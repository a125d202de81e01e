// Package service turns public translation requests into repository calls and
// keeps a history record of each one.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/seantiz/polyglot/internal/language"
	plog "github.com/seantiz/polyglot/internal/log"
	"github.com/seantiz/polyglot/internal/model"
	"github.com/seantiz/polyglot/internal/store"
)

// ErrInvalid matches every error caused by the request itself.
var ErrInvalid = errors.New("invalid translation request")

// Translator runs translations on the active engine.
type Translator interface {
	Translate(ctx context.Context, text, source, target string, params map[string]any) (string, error)
	Model() string
}

// Request is a public translation request. Languages use xx_XX codes.
type Request struct {
	Text           string         `json:"text"`
	SourceLanguage string         `json:"source_language"`
	TargetLanguage string         `json:"target_language"`
	Parameters     map[string]any `json:"generation_parameters,omitempty"`
}

// Result is the outcome of a successful translation.
type Result struct {
	ID          string `json:"id"`
	Translation string `json:"translation"`
	DurationMS  int    `json:"duration_ms"`
}

// Service validates, maps and records translations.
type Service struct {
	translator Translator
	store      store.Store
	mapper     *language.Mapper
	codeSet    string
	logger     *slog.Logger
}

// New returns a service. codeSet names the language mapping of the active engine.
func New(t Translator, s store.Store, m *language.Mapper, codeSet string, logger *slog.Logger) *Service {
	return &Service{translator: t, store: s, mapper: m, codeSet: codeSet, logger: logger}
}

// CodeSet returns the language code set of the active engine.
func (s *Service) CodeSet() string {
	return s.codeSet
}

// Languages lists the public codes the active engine accepts.
func (s *Service) Languages() ([]string, error) {
	return s.mapper.Languages(s.codeSet)
}

// Translate validates req, maps its languages for the active engine and runs
// the translation. The history record is best effort: store failures are
// logged and never fail the request.
func (s *Service) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrInvalid)
	}
	source, err := s.mapLanguage("source_language", req.SourceLanguage)
	if err != nil {
		return nil, err
	}
	target, err := s.mapLanguage("target_language", req.TargetLanguage)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(req.Text))
	rec := &model.Translation{
		ID:             model.NewID(),
		Status:         model.StatusRunning,
		Model:          s.translator.Model(),
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		InputHash:      hex.EncodeToString(sum[:]),
		InputChars:     utf8.RuneCountInString(req.Text),
		CreatedAt:      time.Now().UTC(),
	}
	ctx = plog.ContextAttrs(ctx, slog.String("translation_id", rec.ID))

	s.logger.InfoContext(ctx, "executing translation",
		"source_language", req.SourceLanguage,
		"target_language", req.TargetLanguage,
		"input_chars", rec.InputChars,
	)
	if err := s.store.CreateTranslation(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to record translation", "error", err)
	}

	start := time.Now()
	out, err := s.translator.Translate(ctx, req.Text, source, target, req.Parameters)
	durationMS := int(time.Since(start).Milliseconds())
	now := time.Now().UTC()

	rec.DurationMS = &durationMS
	rec.FinishedAt = &now
	if err != nil {
		rec.Status = model.StatusFailed
		rec.Error = err.Error()
		s.finish(ctx, rec)
		s.logger.ErrorContext(ctx, "translation failed", "error", err, "duration_ms", durationMS)
		return nil, err
	}

	outChars := utf8.RuneCountInString(out)
	rec.Status = model.StatusCompleted
	rec.OutputChars = &outChars
	s.finish(ctx, rec)
	s.logger.InfoContext(ctx, "returning translation result", "duration_ms", durationMS)

	return &Result{ID: rec.ID, Translation: out, DurationMS: durationMS}, nil
}

func (s *Service) mapLanguage(field, code string) (string, error) {
	if err := language.ValidateCode(code); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	mapped, err := s.mapper.Map(code, s.codeSet)
	if errors.Is(err, language.ErrLanguageNotFound) {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	if err != nil {
		return "", err
	}
	return mapped, nil
}

func (s *Service) finish(ctx context.Context, rec *model.Translation) {
	if err := s.store.FinishTranslation(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to update translation record", "status", rec.Status, "error", err)
	}
}
