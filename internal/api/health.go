package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	WorkerAlive bool   `json:"worker_alive"`
}

// handleHealthz reports liveness of the HTTP process. A stopped worker is
// healthy: it starts on the next translation.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body := healthResponse{
		Status:      "ok",
		Model:       s.worker.Model(),
		WorkerAlive: s.worker.Status().Alive,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
