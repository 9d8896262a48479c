package api

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope used for errors and status endpoints. Dataset
// endpoints answer with their payload directly.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SendSuccess sends a successful JSON response
func SendSuccess(w http.ResponseWriter, data interface{}, message string) {
	respond(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendError sends an error JSON response
func SendError(w http.ResponseWriter, statusCode int, errorMsg string, message string) {
	respond(w, statusCode, Response{
		Success: false,
		Message: message,
		Error:   errorMsg,
	})
}

// SendValidationError sends a 422 Unprocessable Entity response for validation errors
func SendValidationError(w http.ResponseWriter, errorMsg string) {
	SendError(w, http.StatusUnprocessableEntity, errorMsg, "Validation failed")
}

// SendInternalServerError hides err from the client; callers log it
func SendInternalServerError(w http.ResponseWriter) {
	SendError(w, http.StatusInternalServerError,
		"An internal server error occurred",
		"Something went wrong. Please try again later.")
}

// respond is a helper function to send JSON responses
func respond(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Error encoding response", http.StatusInternalServerError)
		}
	}
}

// sendJSON sends a bare payload with status 200
func sendJSON(w http.ResponseWriter, data interface{}) {
	respond(w, http.StatusOK, data)
}
