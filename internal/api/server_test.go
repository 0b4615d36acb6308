package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fruitbot/internal/auth"
	"fruitbot/internal/catalog"
	"fruitbot/internal/config"
	"fruitbot/internal/gacha"
	"fruitbot/internal/game"
	"fruitbot/internal/ledger"
	"fruitbot/internal/metrics"
	"fruitbot/internal/store/sqlite"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testSecret   = "api-test-secret-0123456789"
	testAdminKey = "let-me-in"
)

type zeroRNG struct{}

func (zeroRNG) Float64() float64 { return 0 }

type testEnv struct {
	srv    *httptest.Server
	issuer *auth.Issuer
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvWithStore(t, func(st *sqlite.Store) ledger.Store { return st })
}

func newTestEnvWithStore(t *testing.T, wrap func(*sqlite.Store) ledger.Store) testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cat, err := catalog.Default(log)
	require.NoError(t, err)
	svc, err := game.NewService(wrap(st), cat, gacha.DefaultConfig(), game.DefaultSettings(),
		game.WithLogger(log), game.WithRandom(zeroRNG{}))
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	cfg := config.APIConfig{AdminKey: testAdminKey}
	server := New(cfg, log, issuer, svc, metrics.New())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, issuer: issuer}
}

func (e testEnv) token(t *testing.T, playerID string, admin bool) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(playerID, "tester", admin)
	require.NoError(t, err)
	return tok
}

func (e testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/v1/pity", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/v1/pity", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPullFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "p1", false)

	resp, body := env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 2}, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3000), body["balance"])
	assert.Len(t, body["results"], 2)

	resp, _ = env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 2}, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 4})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, float64(4000), body["required"])

	resp, _ = env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 1, "bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/balance", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3000), body["balance"])
	assert.Equal(t, float64(1), body["unique_items"])

	resp, body = env.do(t, http.MethodGet, "/v1/pity", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["current"])
	assert.Equal(t, float64(1500), body["hard_pity"])

	resp, body = env.do(t, http.MethodGet, "/v1/collection", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, body = env.do(t, http.MethodGet, "/v1/history?limit=5", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 2)
}

// txDownStore serves reads but fails every transaction.
type txDownStore struct {
	*sqlite.Store
}

func (txDownStore) WithTx(context.Context, func(context.Context, ledger.Tx) error) error {
	return errors.New("connection reset by peer")
}

func TestBalanceServedWhenAccrualFails(t *testing.T) {
	env := newTestEnvWithStore(t, func(st *sqlite.Store) ledger.Store {
		return txDownStore{Store: st}
	})
	tok := env.token(t, "p9", false)

	resp, body := env.do(t, http.MethodGet, "/v1/balance", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5000), body["balance"])
	assert.Equal(t, "p9", body["player_id"])

	resp, _ = env.do(t, http.MethodPost, "/v1/income/passive", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestManualIncomeErrors(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "p2", false)

	resp, body := env.do(t, http.MethodPost, "/v1/income/manual", tok, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["guidance"])

	resp, _ = env.do(t, http.MethodPost, "/v1/pulls", tok, map[string]any{"count": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/income/manual", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	manual := body["manual"].(map[string]any)
	assert.Equal(t, float64(62), manual["granted"])

	resp, _ = env.do(t, http.MethodPost, "/v1/income/manual", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, body = env.do(t, http.MethodPost, "/v1/income/passive", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["granted"])
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	player := env.token(t, "p3", false)
	admin := env.token(t, "ops", true)

	resp, _ := env.do(t, http.MethodGet, "/v1/admin/stats", player, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/v1/admin/players/p3/adjust", admin, map[string]any{"delta": 250, "reason": "bug bounty"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5250), body["balance"])

	resp, _ = env.do(t, http.MethodPost, "/v1/admin/players/p3/adjust", admin, map[string]any{"delta": -99999, "reason": "oops"})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["players"])

	resp, _ = env.do(t, http.MethodDelete, "/v1/admin/players/p3", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["players"])
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"player_id": "discord:1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"player_id": "discord:1", "username": "usopp"},
		"X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tok, _ := body["access_token"].(string)
	require.NotEmpty(t, tok)

	claims, err := env.issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "discord:1", claims.PlayerID())
	assert.False(t, claims.Admin)

	resp, _ = env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"player_id": "bad id"},
		"X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
