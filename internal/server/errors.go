package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// apiError is the structured error returned by every control endpoint:
// a stable machine-readable kind plus a human-readable message.
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Error kinds and their HTTP status classes.
const (
	kindBadRequest = "bad_request"
	kindNotFound   = "not_found"
	kindConflict   = "conflict"
	kindInternal   = "internal"
)

func badRequest(format string, args ...any) *apiError {
	return &apiError{Kind: kindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *apiError {
	return &apiError{Kind: kindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *apiError {
	return &apiError{Kind: kindConflict, Message: fmt.Sprintf(format, args...)}
}

func statusCode(e *apiError) int {
	switch e.Kind {
	case kindBadRequest:
		return http.StatusBadRequest
	case kindNotFound:
		return http.StatusNotFound
	case kindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as a JSON body. Unrecognized errors are wrapped
// as kind "internal" so handlers can simply return wrapped file or
// store errors.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ae *apiError
	if !errors.As(err, &ae) {
		ae = &apiError{Kind: kindInternal, Message: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(ae))
	if encErr := json.NewEncoder(w).Encode(ae); encErr != nil {
		s.logger.Error("failed to encode error response", "error", encErr)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
