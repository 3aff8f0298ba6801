package api

import (
	"encoding/json"
	"net/http"

	"github.com/depsight/depsight/pkg/errors"
)

// ErrorResponse is the structured error payload: a stable kind string plus
// a human-readable message.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

var statusByCode = map[errors.Code]int{
	errors.ErrCodeInvalidInput:      http.StatusBadRequest,
	errors.ErrCodeNotFound:          http.StatusNotFound,
	errors.ErrCodeMissingCredential: http.StatusUnauthorized,
	errors.ErrCodeRunInProgress:     http.StatusConflict,
	errors.ErrCodeFetchFailed:       http.StatusBadGateway,
	errors.ErrCodeFeedUnavailable:   http.StatusBadGateway,
	errors.ErrCodeNetwork:           http.StatusBadGateway,
	errors.ErrCodeTimeout:           http.StatusGatewayTimeout,
	errors.ErrCodeInternal:          http.StatusInternalServerError,
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, ErrorResponse{Kind: string(code), Error: errors.UserMessage(err)})
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	s.writeError(w, errors.New(errors.ErrCodeInvalidInput, format, args...))
}
