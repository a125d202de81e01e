package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/polyglot/internal/model"
	"github.com/seantiz/polyglot/internal/service"
	"github.com/seantiz/polyglot/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// listTranslationsResponse wraps the paginated history response.
type listTranslationsResponse struct {
	Translations []*model.Translation `json:"translations"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, r, fmt.Errorf("%w: invalid JSON body: %v", service.ErrInvalid, err))
		return
	}

	res, err := s.translator.Translate(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTranslation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.store.GetTranslation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "translation not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get translation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get translation")
		return
	}

	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	translations, total, err := s.store.ListTranslations(r.Context(), limit, offset)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list translations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list translations")
		return
	}

	if translations == nil {
		translations = []*model.Translation{}
	}

	s.writeJSON(w, http.StatusOK, listTranslationsResponse{
		Translations: translations,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}
