package api

import "net/http"

type engineResponse struct {
	Name        string `json:"name"`
	CodeSet     string `json:"code_set"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

type languagesResponse struct {
	Model     string   `json:"model"`
	CodeSet   string   `json:"code_set"`
	Languages []string `json:"languages"`
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	active := s.worker.Model()
	entries := s.engines.List()

	engines := make([]engineResponse, len(entries))
	for i, e := range entries {
		engines[i] = engineResponse{
			Name:        e.Name,
			CodeSet:     e.CodeSet,
			Description: e.Description,
			Active:      e.Name == active,
		}
	}
	s.writeJSON(w, http.StatusOK, engines)
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	codes, err := s.translator.Languages()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, languagesResponse{
		Model:     s.worker.Model(),
		CodeSet:   s.translator.CodeSet(),
		Languages: codes,
	})
}
