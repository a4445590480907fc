package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"murmur/internal/api"
	"murmur/internal/pipeline"
	"murmur/internal/services"
)

func TestWriteServiceErrorStatusMapping(t *testing.T) {
	srv := &apiServer{}
	cases := []struct {
		name   string
		err    error
		status int
		kind   services.Kind
		field  string
	}{
		{
			name:   "validation",
			err:    &pipeline.ValidationError{Field: "volume", Reason: "must be between 0 and 1"},
			status: http.StatusBadRequest,
			kind:   services.KindValidation,
			field:  "volume",
		},
		{
			name:   "not found",
			err:    services.Wrap(services.ErrNotFound, "api", "get", "job abc not found", nil),
			status: http.StatusNotFound,
			kind:   services.KindNotFound,
		},
		{
			name:   "storage",
			err:    services.Wrap(services.ErrStorage, "queue", "list", "database locked", errors.New("busy")),
			status: http.StatusInternalServerError,
			kind:   services.KindStorage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.writeServiceError(w, fmt.Errorf("wrapped: %w", tc.err))
			if w.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, w.Code)
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != string(tc.kind) {
				t.Fatalf("expected kind %q, got %q", tc.kind, resp.Kind)
			}
			if resp.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, resp.Field)
			}
		})
	}
}

func TestHandleClearRejectsUnknownStatus(t *testing.T) {
	srv := &apiServer{}
	req := httptest.NewRequest(http.MethodDelete, "/api/jobs?status=processing", nil)
	w := httptest.NewRecorder()
	srv.handleClear(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Field != "status" {
		t.Fatalf("expected status field, got %q", resp.Field)
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := authMiddleware("token", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer token")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run with valid token, got %d", w.Code)
	}

	open := authMiddleware("", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	w = httptest.NewRecorder()
	open(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected open access without configured token, got %d", w.Code)
	}
}
