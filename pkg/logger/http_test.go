package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func newTestRouter(buf *bytes.Buffer) *chi.Mux {
	log := NewWriter(buf, "debug")
	r := chi.NewRouter()
	r.Use(middleware.RequestID, Middleware(log), Recovery(log))
	r.Get("/reservations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"open"}`))
	})
	r.Post("/reservations/{id}/close", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	})
	return r
}

func TestMiddleware_LogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reservations/8d1c", http.NoBody))

	entry := lastEntry(t, &buf)
	if entry["route"] != "/reservations/{id}" {
		t.Errorf("route = %v, want pattern", entry["route"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v", entry["status"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v", entry["level"])
	}
	if _, ok := entry["request_id"]; !ok {
		t.Error("expected request_id")
	}
}

func TestMiddleware_ClientErrorsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/reservations/8d1c/close", http.NoBody))

	entry := lastEntry(t, &buf)
	if entry["level"] != "WARN" || entry["status"] != float64(http.StatusConflict) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestRecovery_Returns500(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rr.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("ledger exploded")) {
		t.Errorf("panic value not logged: %s", buf.String())
	}
	entry := lastEntry(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("request log level = %v, want ERROR", entry["level"])
	}
}
