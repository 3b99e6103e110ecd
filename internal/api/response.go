// Fieldguard - CRM Security Monitoring and Controlled Disclosure
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldguard

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldguard/internal/logging"
	"github.com/tomtom215/fieldguard/internal/models"
	"github.com/tomtom215/fieldguard/internal/validation"
)

// maxBodyBytes caps request bodies; an event batch is the largest.
const maxBodyBytes = 256 * 1024

// sanitizeLogValue escapes control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func metadata(r *http.Request) models.Metadata {
	return models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// respondJSON writes the envelope. API responses carry contact data and are
// never cached.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status:   models.StatusSuccess,
		Data:     data,
		Metadata: metadata(r),
	})
}

// respondError writes an error envelope. err is logged, never sent.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	respondAPIError(w, r, status, &models.APIError{Code: code, Message: message}, err)
}

func respondAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", apiErr.Code).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   models.StatusError,
		Metadata: metadata(r),
		Error:    apiErr,
	})
}

// decodeJSON reads a bounded JSON body into v and validates it. On failure
// the response has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
			return false
		}
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body", nil)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON body", nil)
		return false
	}
	return validateRequest(w, r, v)
}

// validateRequest runs struct validation and writes a VALIDATION_ERROR on
// failure.
func validateRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	apiErr := &models.APIError{Code: validation.CodeValidation, Message: err.Error()}
	var reqErr *validation.RequestError
	if errors.As(err, &reqErr) {
		apiErr.Details = reqErr.Details()
	}
	respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
	return false
}
