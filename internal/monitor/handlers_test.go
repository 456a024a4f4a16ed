package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(env.monitor, env.alerts, context.Background())
	v1 := router.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_StatusAndLifecycle(t *testing.T) {
	env := newTestEnv(testConfig())
	env.seedPosition(40)
	router := setupRouter(env)

	w := doRequest(router, http.MethodGet, "/v1/monitor/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)

	w = doRequest(router, http.MethodPost, "/v1/monitor/start")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/monitor/start")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/monitor/stop")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/monitor/stop")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_TrackUntrack(t *testing.T) {
	env := newTestEnv(testConfig())
	env.seedPosition(40)
	router := setupRouter(env)

	w := doRequest(router, http.MethodPost, "/v1/monitor/accounts/"+account)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Count int `json:"count"`
	}
	w = doRequest(router, http.MethodGet, "/v1/monitor/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Count)

	w = doRequest(router, http.MethodPost, "/v1/monitor/accounts/junk")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodDelete, "/v1/monitor/accounts/"+account)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.monitor.Tracked())
}

func TestHandler_AlertsAndAck(t *testing.T) {
	env := newTestEnv(testConfig())
	router := setupRouter(env)

	require.NoError(t, env.alerts.Create(context.Background(), &Alert{
		ID: "alert_1", Account: account, Severity: SeverityHigh,
	}))

	w := doRequest(router, http.MethodGet, "/v1/monitor/alerts?account="+account)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alert_1")

	w = doRequest(router, http.MethodPost, "/v1/monitor/alerts/alert_1/ack")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/monitor/alerts/nope/ack")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
