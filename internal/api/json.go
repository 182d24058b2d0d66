package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON marshals v before touching the response, so an encoding
// failure can still produce a clean 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("response encoding failed", slog.String("error", err.Error()))
		data, status = []byte(`{"error":"internal error"}`), http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
