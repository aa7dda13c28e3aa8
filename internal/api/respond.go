package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"classbook/internal/domain"
	"classbook/internal/logging"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{domain.ErrDuplicateID, http.StatusConflict, "DUPLICATE_ID"},
	{domain.ErrSlotConflict, http.StatusConflict, "SLOT_CONFLICT"},
	{domain.ErrAlreadyReserved, http.StatusConflict, "ALREADY_RESERVED"},
	{domain.ErrAlreadyFree, http.StatusConflict, "ALREADY_FREE"},
	{domain.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{domain.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{domain.ErrInvalidPriority, http.StatusBadRequest, "INVALID_PRIORITY"},
	{domain.ErrInvalidRange, http.StatusBadRequest, "INVALID_RANGE"},
	{domain.ErrInvalidBooking, http.StatusBadRequest, "INVALID_BOOKING"},
	{domain.ErrPasswordMismatch, http.StatusBadRequest, "PASSWORD_MISMATCH"},
	{domain.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message, Code: code})
}

// writeDomainError maps a service error to its status and code. Unknown
// errors are logged and reported as 500 without leaking details.
func writeDomainError(w http.ResponseWriter, r *http.Request, fallback *zerolog.Logger, err error) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verrs.Error(), Code: "VALIDATION_FAILED", Details: verrs})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}

	logging.FromContext(r.Context(), fallback).Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}
