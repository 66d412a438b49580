package api

import (
	"encoding/json"
	"net/http"
)

// Response is the unified envelope format.
type Response struct {
	Result  string      `json:"result"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	writeResponse(w, http.StatusOK, &Response{Result: "ok", Data: data})
}

// WriteAccepted writes a success envelope with 202 for async operations.
func WriteAccepted(w http.ResponseWriter, data interface{}) {
	writeResponse(w, http.StatusAccepted, &Response{Result: "ok", Data: data})
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeResponse(w, statusCode, &Response{Result: "error", Code: code, Message: message})
}

func writeResponse(w http.ResponseWriter, statusCode int, response *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
