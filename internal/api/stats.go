package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	ByTargetLanguage map[string]int `json:"by_target_language"`
	AvgDurationMS    float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetTranslationStats(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get translation stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:            stats.Total,
		ByStatus:         stats.CountByStatus,
		ByTargetLanguage: stats.CountByTarget,
		AvgDurationMS:    stats.AvgDurationMS,
	})
}
