package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"txlens/internal/config"
	"txlens/internal/decoder"
	lenserrors "txlens/internal/errors"
	"txlens/internal/registry"
	"txlens/internal/registry/registrytest"
	"txlens/internal/session"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

var (
	token = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct {
	receipts map[string]*models.Receipt
	err      error
}

func (f *stubFetcher) Fetch(ctx context.Context, hash string) (*models.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, lenserrors.NewNotFoundError(hash)
}

type stubPrices struct{}

func (stubPrices) AggregatePrices(ctx context.Context, logs []models.DecodedLog) models.TokenPriceMap {
	prices := models.TokenPriceMap{}
	for _, l := range logs {
		if l.IsTransfer() {
			prices[l.Address.Hex()] = "2500.50"
		}
	}
	return prices
}

func newTestServer(t *testing.T, fetcher session.ReceiptFetcher) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg, err := registry.NewDefault()
	require.NoError(t, err)

	sess := session.New(fetcher, decoder.NewLogDecoder(reg, logger), stubPrices{}, logger)
	return NewServer(config.GetDefaultConfig(), sess, logger, 0)
}

func transferReceipt() *models.Receipt {
	oneToken, _ := new(big.Int).SetString("1000000000000000000", 10)
	return &models.Receipt{
		TxHash:  common.HexToHash(txHash),
		From:    alice,
		To:      &bob,
		GasUsed: big.NewInt(51000),
		Logs:    []models.RawLog{registrytest.TransferLog(token, alice, bob, oneToken)},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})
	w, body := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestLookup_Success(t *testing.T) {
	s := newTestServer(t, &stubFetcher{receipts: map[string]*models.Receipt{txHash: transferReceipt()}})
	h := s.Handler()

	w, body := do(t, h, http.MethodPost, "/api/v1/lookup?wait=true", LookupRequest{Hash: txHash})
	require.Equal(t, http.StatusOK, w.Code)

	view := body["view"].(map[string]interface{})
	assert.Equal(t, "Transfer", view["classification"])
	assert.Equal(t, "51000 Wei", view["gas_used"])
	assert.Nil(t, view["contract_address"])

	transfers := view["transfers"].([]interface{})
	require.Len(t, transfers, 1)
	row := transfers[0].(map[string]interface{})
	assert.Equal(t, "1.0", row["amount"])
	assert.Equal(t, "2500.50USD", row["price"])

	w, body = do(t, h, http.MethodGet, "/api/v1/prices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{token.Hex(): "2500.50"}, body["prices"])

	w, body = do(t, h, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
}

func TestLookup_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		fetcher  *stubFetcher
		body     interface{}
		expected int
	}{
		{"empty hash", &stubFetcher{}, LookupRequest{Hash: ""}, http.StatusBadRequest},
		{"not found", &stubFetcher{}, LookupRequest{Hash: txHash}, http.StatusNotFound},
		{"transport", &stubFetcher{err: lenserrors.NewTransportError(txHash, errors.New("dial tcp: refused"))},
			LookupRequest{Hash: txHash}, http.StatusBadGateway},
		{"unexpected", &stubFetcher{err: errors.New("boom")}, LookupRequest{Hash: txHash}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.fetcher)
			w, body := do(t, s.Handler(), http.MethodPost, "/api/v1/lookup", tt.body)
			assert.Equal(t, tt.expected, w.Code)
			assert.NotEmpty(t, body["error"])

			_, history := do(t, s.Handler(), http.MethodGet, "/api/v1/history", nil)
			assert.Equal(t, float64(0), history["total"])
		})
	}
}

func TestLookup_MalformedBody(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookup", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndConfig(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})
	s.config.Node.APIKey = "secret"
	h := s.Handler()

	do(t, h, http.MethodPost, "/api/v1/lookup", LookupRequest{Hash: txHash})

	w, body := do(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	errs := body["errors"].(map[string]interface{})
	assert.Equal(t, float64(1), errs["total_errors"])

	w, body = do(t, h, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	node := body["node"].(map[string]interface{})
	assert.Equal(t, "***", node["api_key"])
	assert.NotContains(t, node["endpoint"], "secret")
}

func TestLogsEndpoints(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})
	h := s.Handler()

	s.logger.WithField("tx_hash", txHash).Warn("查询交易失败")
	s.logger.Info("ready")

	w, body := do(t, h, http.MethodGet, "/api/v1/logs?level=warning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])

	w, _ = do(t, h, http.MethodDelete, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = do(t, h, http.MethodGet, "/api/v1/logs", nil)
	assert.Equal(t, float64(0), body["total"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubFetcher{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/lookup", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLookup_ConcurrentWaitRequests(t *testing.T) {
	s := newTestServer(t, &stubFetcher{receipts: map[string]*models.Receipt{txHash: transferReceipt()}})
	h := s.Handler()
	body, err := json.Marshal(LookupRequest{Hash: txHash})
	require.NoError(t, err)

	const requests = 16
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/lookup?wait=true", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	require.NoError(t, s.Stop(context.Background()))

	w, out := do(t, h, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(requests), out["total"])
}
