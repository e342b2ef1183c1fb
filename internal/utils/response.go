package utils

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func ErrorResponse(message, err string) APIResponse {
	return APIResponse{Success: false, Message: message, Error: err}
}

func ValidationResponse(fields map[string][]string) APIResponse {
	return APIResponse{Success: false, Message: "Validation failed", Errors: fields}
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, APIResponse{Success: false, Message: message})
}
