package server

import (
	"encoding/json"
	"net/http"

	"github.com/jfigueras/rewindbox/internal/apperr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"code":"UNKNOWN_ERROR","message":"encoding response"}}`, http.StatusInternalServerError)
	}
}

// writeAppError maps an error to the wire taxonomy. Internal details
// stay on the server side; the body carries only code and message.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorBody{
		Error: errorDetail{Code: code, Message: apperr.MessageOf(err)},
	})
}
