package server

import (
	"encoding/json"
	"net/http"
)

// jsonError is the error body every endpoint returns.
type jsonError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Could not encode response body")
	}
}

func handleError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, &jsonError{Message: msg, Code: code})
}
