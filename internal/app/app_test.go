package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/regionocr/internal/config"
	"github.com/psantana5/regionocr/pkg/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.Data.Root = filepath.Join(t.TempDir(), "jobs")
	return cfg
}

func quietLogger() *logging.Logger {
	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func TestNewServesMetricsOnAPIPort(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.DirExists(t, cfg.Data.Root)
	assert.Nil(t, a.MetricsRouter)
	assert.Nil(t, a.MetricsServer())
	assert.NotNil(t, a.Limiter)

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "regionocr_store_up 1")
	assert.Contains(t, w.Body.String(), "regionocr_uptime_seconds")

	srv := a.HTTPServer()
	assert.Equal(t, ":8000", srv.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, srv.ReadTimeout)
}

func TestNewSeparateMetricsListener(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Port = 9400
	cfg.RateLimit.RPS = 0
	cfg.Store.Type = "memory"

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Limiter)
	require.NotNil(t, a.MetricsRouter)
	assert.Equal(t, ":9400", a.MetricsServer().Addr)

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics must not be served on the API port")

	w = httptest.NewRecorder()
	a.MetricsRouter.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Metrics)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewCustomTemplate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Template = filepath.Join(t.TempDir(), "block.xml")
	require.NoError(t, os.WriteFile(cfg.Export.Template, []byte(`<p id="{{problem_id}}">{{ocr_text}}</p>`), 0644))

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	a.Close(context.Background())

	cfg = testConfig(t)
	cfg.Export.Template = filepath.Join(t.TempDir(), "missing.xml")
	_, err = New(cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "regionocr.db")

	a, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"store":"ok"`), w.Body.String())
}
