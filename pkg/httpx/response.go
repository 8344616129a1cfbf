package httpx

import (
	"encoding/json"
	"net/http"
)

var internalErrorBody = []byte(`{"error":"Internal Server Error"}`)

// JSON writes v with status. The body is encoded before the header is sent,
// so a value that cannot be encoded becomes a 500 rather than a truncated
// response. Responses carry per-user data and are never cached.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = internalErrorBody
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// JSONError writes {"error": message}.
func JSONError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
