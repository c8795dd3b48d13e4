package api

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON body every failed request carries.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in failure responses. The record CRUD surfaces
// use the generic codes; the live operation surfaces map adapter
// failures onto the instrument-flavoured ones.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeForbidden  = "forbidden" // write or invoke on a path that only reads
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"
	ErrCodeTimeout    = "timeout"        // instrument did not answer in time
	ErrCodeDevice     = "device_error"   // instrument answered with a fault
	ErrCodeDecode     = "decode_error"   // reply arrived but would not parse
	ErrCodeBusy       = "busy"           // command queue full
	ErrCodeUpstream   = "upstream_error" // transport would not open
)

// writeJSON serialises v onto the response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError emits the standard failure body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// Shorthands for the statuses the handlers produce constantly.

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
