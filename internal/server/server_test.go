package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerisk/internal/config"
	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/records"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAccount = "0xaaaa000000000000000000000000000000000001"

// testConfig returns a minimal config for testing (in-memory everything)
func testConfig() *config.Config {
	return &config.Config{
		Port:     "0",
		Env:      "development",
		LogLevel: "error",

		ModelMode: "off",

		CacheTTL:           time.Minute,
		CacheMaxEntries:    100,
		CacheSweepInterval: time.Minute,
		PrimaryTTL:         time.Minute,
		SecondaryTTL:       time.Minute,
		OracleTTL:          time.Minute,

		WeightPrimary:    0.5,
		WeightReputation: 0.3,

		WriteBackMinDelta: 5,
		MonitorInterval:   time.Hour,
		ChangeThreshold:   5,
		AlertMultiplier:   2,
		MonitorWorkers:    2,

		RateLimitRPS: 10000,
	}
}

type testServer struct {
	srv    *Server
	ledger *ledger.MemoryClient
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	lclient := ledger.NewMemoryClient()
	srv, err := New(cfg,
		WithLogger(logging.Discard()),
		WithLedger(lclient),
		WithRecordsClient(records.NewMemoryClient()),
	)
	require.NoError(t, err)
	return &testServer{srv: srv, ledger: lclient}
}

func (ts *testServer) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Info(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledgerisk")
}

func TestServer_Liveness(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_ReadinessBeforeRun(t *testing.T) {
	ts := newTestServer(t, testConfig())

	// Run has not been called, so the server is not ready yet
	w := ts.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "ledger")
}

func TestServer_AssessEndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.ledger.SetPosition(ledger.Position{
		Account:  testAccount,
		Deposits: decimal.NewFromInt(1000),
	})

	w := ts.do(http.MethodPost, "/v1/accounts/"+testAccount+"/assess", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"score":38`)
	assert.Contains(t, w.Body.String(), `"stage":"combined"`)
}

func TestServer_RejectsMalformedAddress(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodPost, "/v1/accounts/not-an-address/assess", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")
}

func TestServer_MonitorStatusRoute(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodGet, "/v1/monitor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)
}

func TestServer_AdminOpenInDevelopment(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodDelete, "/v1/admin/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AdminRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AdminSecret = "hunter2"
	ts := newTestServer(t, cfg)

	w := ts.do(http.MethodDelete, "/v1/admin/cache", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodDelete, "/v1/admin/cache", map[string]string{"X-Admin-Secret": "hunter2"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AdminClosedInProductionWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	ts := newTestServer(t, cfg)

	w := ts.do(http.MethodPost, "/v1/admin/monitor/start", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_RequestIDHeader(t *testing.T) {
	ts := newTestServer(t, testConfig())

	w := ts.do(http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = ts.do(http.MethodGet, "/", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
