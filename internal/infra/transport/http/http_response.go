package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mkrupp/streamhub/internal/domain"
	"github.com/mkrupp/streamhub/internal/infra/logging"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrMalformedBody is returned when a request body is not the expected JSON.
var ErrMalformedBody = domain.NewError(domain.KindValidation, "request body must be valid JSON")

// SuccessResponse is the envelope of every successful response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the envelope of every failed response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, message string, data any) error {
	return WriteJSON(w, status, SuccessResponse{Success: true, Message: message, Data: data})
}

// WriteErrorMessage writes a failure envelope.
func WriteErrorMessage(w http.ResponseWriter, status int, message, code string) {
	_ = WriteJSON(w, status, ErrorResponse{Success: false, Message: message, Code: code})
}

// StatusForError maps a domain error kind to an HTTP status code.
// Anything outside the taxonomy is a 500.
func StatusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuth, domain.KindExpired, domain.KindInvalidToken, domain.KindMissingToken:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// CodeForError returns the machine-readable code of an error, if it has one.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return domain.CodeTokenExpired
	case errors.Is(err, domain.ErrInvalidAuthToken):
		return domain.CodeTokenInvalid
	case errors.Is(err, domain.ErrMissingToken):
		return domain.CodeTokenMissing
	case errors.Is(err, domain.ErrSubjectNotFound):
		return domain.CodeUserNotFound
	case errors.Is(err, domain.ErrForbidden):
		return domain.CodeForbidden
	default:
		return ""
	}
}

// WriteError renders err as a failure envelope. Internal errors are logged
// and hidden behind a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "internal error", "error", err)
	}

	WriteErrorMessage(w, status, domain.MessageOf(err), CodeForError(err))
}

// DecodeJSON decodes a JSON request body into v. An empty body leaves v untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return errors.Join(ErrMalformedBody, err)
	}

	return nil
}
