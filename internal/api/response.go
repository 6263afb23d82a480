// Package api holds the JSON envelope shared by every HTTP endpoint.
// Handlers return either {"data": ...} or {"error": "..."} so clients can
// branch on a single top-level key.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quill-labs/quillai/internal/domain"
)

// SuccessResponse is the envelope for 2xx bodies.
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the envelope for error bodies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes data as a JSON body with the given status. A nil data writes
// headers only, which is how 204 responses stay empty.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success wraps data in the success envelope.
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error wraps message in the error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// statusByCode maps domain error codes to HTTP statuses.
var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeInvalidOperation: http.StatusBadRequest,
	domain.ErrCodeUnauthorized:     http.StatusUnauthorized,
	domain.ErrCodeForbidden:        http.StatusForbidden,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeAlreadyExists:    http.StatusConflict,
}

// DomainErrorToHTTP resolves the HTTP status for an error. Anything that is
// not a known domain error becomes a 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[domainErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err as an error envelope with its mapped status.
func HandleError(w http.ResponseWriter, err error) {
	Error(w, DomainErrorToHTTP(err), err.Error())
}
