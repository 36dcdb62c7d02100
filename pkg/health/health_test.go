package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, c *Checker, path string) (int, Report) {
	t.Helper()

	r := gin.New()
	Register(r, c)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var out Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestReadinessHealthy(t *testing.T) {
	c := &Checker{probes: []probe{
		{name: "sqlite", check: func(context.Context) error { return nil }},
	}}

	code, out := serve(t, c, "/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", out.Status)
	require.Len(t, out.Deps, 1)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	c := &Checker{probes: []probe{
		{name: "sqlite", check: func(context.Context) error { return nil }},
		{name: "redis", check: func(context.Context) error { return errors.New("connection refused") }},
	}}

	code, out := serve(t, c, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unhealthy", out.Status)
	require.Equal(t, "healthy", out.Deps[0].Status)
	require.Equal(t, "redis", out.Deps[1].Name)
	require.Equal(t, "connection refused", out.Deps[1].Message)
}

func TestLivenessIgnoresDependencies(t *testing.T) {
	c := &Checker{probes: []probe{
		{name: "redis", check: func(context.Context) error { return errors.New("down") }},
	}}

	code, out := serve(t, c, "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", out.Status)
}
