package status

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func serve(h *StatusHandler) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/status", h.Status)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	return w
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	w := serve(New(dir, fixedCount(3)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Connections)
	assert.Equal(t, dir, resp.Disk.Path)
	assert.NotZero(t, resp.Disk.Total)
	assert.Equal(t, os.Getpid(), resp.Process.PID)
	assert.Positive(t, resp.Process.Goroutines)
	assert.NotEmpty(t, resp.Version.Version)
}

func TestStatusMissingDataDir(t *testing.T) {
	w := serve(New("/definitely/not/here", fixedCount(0)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "E_INTERNAL_ERROR")
}
