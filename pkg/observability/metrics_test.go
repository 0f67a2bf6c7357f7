package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRegistryExposesGoCollectors(t *testing.T) {
	reg := NewRegistry()
	handler := MetricsHandler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("expected go collector metrics in output, got %q", rec.Body.String())
	}
}
