package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/seantiz/polyglot/internal/language"
	"github.com/seantiz/polyglot/internal/repository"
	"github.com/seantiz/polyglot/internal/service"
	"github.com/seantiz/polyglot/internal/worker"
)

const (
	messageValueError    = "Value error"
	messageInternalError = "Internal server error"
)

// errorResponse is the body of failed translation requests.
type errorResponse struct {
	Error   string       `json:"error"`
	Details errorDetails `json:"details"`
}

type errorDetails struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// errorTypes names error classes for clients, most specific first.
var errorTypes = []struct {
	err  error
	name string
}{
	{language.ErrInvalidLanguageFormat, "InvalidLanguageFormatError"},
	{language.ErrLanguageNotFound, "LanguageNotFoundError"},
	{language.ErrUnknownCodeSet, "LanguageMappingError"},
	{service.ErrInvalid, "ValueError"},
	{worker.ErrInitialize, "InitializationError"},
	{worker.ErrEngine, "EngineError"},
	{worker.ErrNotRunning, "NotRunningError"},
	{worker.ErrChannelClosed, "ChannelClosedError"},
	{repository.ErrClosed, "ShutdownError"},
}

func errorType(err error) string {
	for _, et := range errorTypes {
		if errors.Is(err, et.err) {
			return et.name
		}
	}
	return fmt.Sprintf("%T", err)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err to 422 for request errors and 500 for everything else.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, messageInternalError
	if errors.Is(err, service.ErrInvalid) {
		status, message = http.StatusUnprocessableEntity, messageValueError
	}

	body := errorResponse{
		Error: message,
		Details: errorDetails{
			ErrorType:    errorType(err),
			ErrorMessage: err.Error(),
		},
	}
	s.logger.ErrorContext(r.Context(), "request failed",
		"status", status,
		"error_type", body.Details.ErrorType,
		"error", err,
	)
	s.writeJSON(w, status, body)
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
