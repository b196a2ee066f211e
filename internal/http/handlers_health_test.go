package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		method   string
		wantBody string
	}{
		{method: http.MethodGet, wantBody: `{"status":"ok"}`},
		{method: http.MethodHead, wantBody: ""},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(rec, httptest.NewRequest(tt.method, "/healthz", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}
