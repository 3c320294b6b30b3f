package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeDashboard(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeDashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "guard_input")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}
