package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
)

// errorBody is the generic JSON error shape used across the control API
// (§4.8: "404 on unknown id or route", §7's NotFound/Unauthorized kinds).
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

func notFound(w http.ResponseWriter)     { writeError(w, http.StatusNotFound, "NOT_FOUND") }
func unauthorized(w http.ResponseWriter) { writeError(w, http.StatusUnauthorized, "UNAUTHORIZED") }
func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}
func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
