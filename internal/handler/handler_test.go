package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/connector"
	"github.com/GoPolymarket/botfleet/internal/container"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/GoPolymarket/botfleet/internal/telemetry"
	"github.com/GoPolymarket/botfleet/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	cfg     *config.Config
	router  *gin.Engine
	state   *service.AccountStateService
	fleet   *service.FleetOrchestrator
	runtime *container.Fake
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	cfg := config.Default().WithBotsRoot(root)
	cfg.Wallet.SecretKeyPath = filepath.Join(root, "secret_key.txt")
	cfg.Broker.CommandTimeout = 200 * time.Millisecond
	master := filepath.Join(cfg.Paths.Credentials, cfg.Paths.MasterAccount)
	require.NoError(t, os.MkdirAll(master, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(master, "conf_client.yml"), []byte("instance_id: master\n"), 0644))

	store := credentials.NewStore(cfg)
	custodian, err := wallet.NewCustodian(cfg, store)
	require.NoError(t, err)
	registry := connector.NewRegistry(store, nil)
	state := service.NewAccountStateService(cfg, registry)
	history, err := service.NewHistoryService(cfg.Paths.Data, cfg.Accounts.HistoryFile, cfg.Accounts.DumpInterval, state, nil)
	require.NoError(t, err)
	t.Cleanup(history.Close)

	accounts := service.NewAccountService(store, custodian, registry, state)
	runtime := container.NewFake()
	fleet := service.NewFleetOrchestrator(cfg, runtime, telemetry.NewMemoryBroker(), accounts, nil)
	t.Cleanup(fleet.Close)

	audit, err := service.NewAuditService(filepath.Join(root, "logs"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(audit.Close)

	api := &API{
		Accounts: NewAccountHandler(accounts),
		State:    NewStateHandler(state, history),
		Bots:     NewBotHandler(service.NewBotService(accounts, store, fleet)),
		Workers:  NewWorkerHandler(fleet),
		Audit:    NewAuditHandler(audit),
	}
	router := gin.New()
	router.Use(middleware.AuditMiddleware(audit, "/health"))
	router.Use(middleware.ErrorHandler())
	api.Register(router.Group("/v1"), middleware.IdempotencyMiddleware(middleware.NewInMemIdempotencyStore(0)))

	return &testAPI{cfg: cfg, router: router, state: state, fleet: fleet, runtime: runtime}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestAccountRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "acct1"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "acct1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/v1/accounts", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/accounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["acct1"]`, rec.Body.String())

	rec = api.do(t, http.MethodDelete, "/v1/accounts/acct1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodDelete, "/v1/accounts/acct1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentialAndStateRoutes(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "acct1"}).Code)

	rec := api.do(t, http.MethodPost, "/v1/accounts/acct1/credentials/nosuchex", map[string]string{"api_key": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CONNECTOR_INIT", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/v1/accounts/acct1/credentials/paper_trade", map[string]string{
		"balances": "SOL:10,USDC:5",
		"prices":   "SOL-USDC:20",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/accounts/acct1/credentials", nil)
	assert.JSONEq(t, `["paper_trade"]`, rec.Body.String())

	require.NoError(t, api.state.RunCycle(context.Background()))
	rec = api.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state model.AccountsState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	entries := state["acct1"]["paper_trade"]
	require.Len(t, entries, 2)
	assert.Equal(t, "SOL", entries[0].Token)
	assert.Equal(t, "200", entries[0].Value.String())

	rec = api.do(t, http.MethodGet, "/v1/state/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/state/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/v1/accounts/acct1/credentials/paper_trade", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletRoutes(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "acct1"}).Code)

	rec := api.do(t, http.MethodGet, "/v1/accounts/acct1/wallet", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "WALLET_NOT_FOUND", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/v1/accounts/acct1/wallet", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["wallet_address"])

	rec = api.do(t, http.MethodGet, "/v1/accounts/acct1/wallet", nil)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created["wallet_address"], got["wallet_address"])
}

func TestBotRoutes(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	rec := api.do(t, http.MethodPost, "/v1/bots", map[string]string{"owner": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/bots", map[string]interface{}{
		"owner":         "alice",
		"strategy_name": "bollinger_v1",
		"market":        "SOL-USDC",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.CreateBotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "hummingbot-robotter_alice_SOL-USDC_bollinger_v1", created.InstanceID)

	rec = api.do(t, http.MethodGet, "/v1/bots/"+created.InstanceID+"/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"not_found"`)

	require.NoError(t, api.fleet.Reconcile(ctx))
	rec = api.do(t, http.MethodGet, "/v1/bots/"+created.InstanceID+"/status", nil)
	assert.Contains(t, rec.Body.String(), `"status":"stopped"`)

	rec = api.do(t, http.MethodGet, "/v1/workers", nil)
	assert.JSONEq(t, `["`+created.InstanceID+`"]`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/v1/bots/"+created.InstanceID+"/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strategy_name":"bollinger_v1"`)

	// nobody answers the broker command
	rec = api.do(t, http.MethodPost, "/v1/bots/"+created.InstanceID+"/start", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "BROKER_CONNECTION", errorCode(t, rec))

	rec = api.do(t, http.MethodDelete, "/v1/bots/"+created.InstanceID+"?archive=false", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/workers", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteBotRejectsNonWorkerIDs(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "alice"}).Code)
	api.runtime.Run("hummingbot-broker")

	cases := []struct {
		path string
		code int
	}{
		{"/v1/bots/%2e%2e?archive=false", http.StatusBadRequest},
		{"/v1/bots/%2e?archive=false", http.StatusBadRequest},
		{"/v1/bots/hummingbot-broker?archive=false", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := api.do(t, http.MethodDelete, tc.path, nil)
		assert.Equal(t, tc.code, rec.Code, tc.path)
	}

	assert.DirExists(t, api.cfg.Paths.BotsRoot)
	assert.DirExists(t, filepath.Join(api.cfg.Paths.Credentials, "alice"))
	running, err := api.runtime.ListRunning(context.Background())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "hummingbot-broker", running[0].Name)
}

func TestStrategiesRoute(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/v1/strategies", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"bollinger_v1"`)
}

func TestBotStatusStream(t *testing.T) {
	api := newTestAPI(t)
	api.runtime.Run("hummingbot-acct1")
	require.NoError(t, api.fleet.Reconcile(context.Background()))

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/bots/hummingbot-acct1/stream?interval=200ms"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var status model.BotStatus
		require.NoError(t, conn.ReadJSON(&status))
		assert.Equal(t, model.StatusStopped, status.Status)
	}
}

func TestAuditRoute(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/accounts/ghost/credentials/paper_trade", map[string]string{"paper_api_secret": "hidden-value"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodPost, "/v1/accounts", map[string]string{"account_name": "acct1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/audit?path=/v1/accounts&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []model.AuditLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, "/v1/accounts", entries[0].Path)
	assert.Equal(t, http.StatusCreated, entries[0].StatusCode)
	assert.Equal(t, "acct1", entries[0].Context["account"])

	assert.Equal(t, http.StatusNotFound, entries[1].StatusCode)
	assert.Equal(t, "NOT_FOUND", entries[1].Context["error_code"])
	assert.NotContains(t, entries[1].RequestBody, "hidden-value")

	rec = api.do(t, http.MethodGet, "/v1/audit?account=acct1&from=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusCreated, entries[0].StatusCode)

	rec = api.do(t, http.MethodGet, "/v1/audit?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodGet, "/v1/audit?from=1h&to=2h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
