package handler

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/gofiber/fiber/v3"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulln0ne/uniswap-funnel/internal/amm/memory"
	"github.com/nulln0ne/uniswap-funnel/internal/feeregistry"
	"github.com/nulln0ne/uniswap-funnel/internal/funnel"
	"github.com/nulln0ne/uniswap-funnel/internal/metrics"
	"github.com/nulln0ne/uniswap-funnel/pkg/fixedpoint"
	"github.com/nulln0ne/uniswap-funnel/pkg/uniswapv2"
)

var (
	factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	tokenA  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokenC  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	lp      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

type testServer struct {
	app      *fiber.App
	pool     common.Address
	key      *ecdsa.PrivateKey
	registry *feeregistry.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	registry := feeregistry.New(crypto.PubkeyToAddress(key.PublicKey), memorydb.New())
	require.NoError(t, registry.SetFee(registry.Owner(), factory, 30))

	m := memory.New()
	require.NoError(t, m.AddFactory(factory, 30))
	pool, err := m.CreatePair(factory, tokenA, tokenB)
	require.NoError(t, err)
	_, _, _, err = m.AddLiquidity(context.Background(), pool, uint256.NewInt(1_000), uint256.NewInt(4_000), lp)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	quoter := funnel.NewQuoter(logger, m, registry, metrics.New(reg))

	app := fiber.New()
	Register(app, NewQuoteHandler(logger, quoter), NewFeeHandler(logger, registry), reg)
	return &testServer{app: app, pool: pool, key: key, registry: registry}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestQuotePartition_OK(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/quote/partition?pool="+s.pool.Hex()+"&base="+tokenA.Hex()+"&amount=100", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var plan SwapPlanResponse
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Equal(t, "a_to_b", plan.Direction)
	assert.Equal(t, "48", plan.SwapIn)
	assert.Equal(t, "182", plan.SwapOut)
	assert.Equal(t, "93", plan.Shares)
	assert.Equal(t, "3", plan.DustA)
	assert.Equal(t, uint16(30), plan.FeeBps)
	assert.Nil(t, plan.PreSwap)
}

func TestQuoteRebalance_OK(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/quote/rebalance?pool="+s.pool.Hex()+"&base="+tokenA.Hex()+"&amount_base=0&amount_farm=1000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var plan SwapPlanResponse
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Equal(t, "b_to_a", plan.Direction)
	assert.Equal(t, "472", plan.SwapIn)
	assert.Equal(t, "105", plan.SwapOut)
}

func TestQuoteRemoval_OK(t *testing.T) {
	s := newTestServer(t)

	target := "/quote/removal?pool=" + s.pool.Hex() + "&shares=500&path1=" + tokenA.Hex() + "," + tokenB.Hex() + "&path2=" + tokenB.Hex()
	resp, body := s.do(t, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var plan RemovalPlanResponse
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Equal(t, "250", plan.Amount0)
	assert.Equal(t, "1000", plan.Amount1)
	assert.Equal(t, tokenB.Hex(), plan.DstToken)
	require.Len(t, plan.Path1, 1)
	assert.Empty(t, plan.Path2)
}

func TestQuote_Validation(t *testing.T) {
	s := newTestServer(t)
	pool := s.pool.Hex()

	testCases := []struct {
		name   string
		target string
		status int
	}{
		{"missing params", "/quote/partition", http.StatusBadRequest},
		{"bad pool", "/quote/partition?pool=0x12&base=" + tokenA.Hex() + "&amount=1", http.StatusBadRequest},
		{"zero amount", "/quote/partition?pool=" + pool + "&base=" + tokenA.Hex() + "&amount=0", http.StatusBadRequest},
		{"bad amount", "/quote/decompose?pool=" + pool + "&base=" + tokenA.Hex() + "&amount=1e18", http.StatusBadRequest},
		{"base not in pool", "/quote/partition?pool=" + pool + "&base=" + tokenC.Hex() + "&amount=10", http.StatusBadRequest},
		{"no route", "/quote/decompose?pool=" + pool + "&base=" + tokenC.Hex() + "&amount=10", http.StatusBadRequest},
		{"both zero", "/quote/rebalance?pool=" + pool + "&base=" + tokenA.Hex() + "&amount_base=0&amount_farm=0", http.StatusBadRequest},
		{"unknown pool", "/quote/partition?pool=" + tokenC.Hex() + "&base=" + tokenA.Hex() + "&amount=10", http.StatusNotFound},
		{"bad path", "/quote/removal?pool=" + pool + "&shares=10&path1=" + tokenA.Hex() + "&path2=" + tokenB.Hex(), http.StatusBadRequest},
		{"too many shares", "/quote/removal?pool=" + pool + "&shares=5000&path1=" + tokenA.Hex() + "&path2=" + tokenB.Hex() + "," + tokenA.Hex(), http.StatusUnprocessableEntity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodGet, tc.target, nil)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))
		})
	}
}

func TestFees_UnknownFactory(t *testing.T) {
	s := newTestServer(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000fe")

	resp, _ := s.do(t, http.MethodGet, "/fees/"+other.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (s *testServer) sign(t *testing.T, factory common.Address, fee uint16, nonce uint64) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(SetFeeMessage(factory, fee, nonce))), s.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func setFeeBody(fee uint16, sig string) io.Reader {
	raw, _ := json.Marshal(SetFeeRequest{FeeBps: fee, Signature: sig})
	return strings.NewReader(string(raw))
}

func TestFees_SignedUpdate(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/fees", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info RegistryResponse
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, s.registry.Owner().Hex(), info.Owner)
	assert.Equal(t, uint64(1), info.Nonce)

	sig := s.sign(t, factory, 25, info.Nonce)
	resp, body = s.do(t, http.MethodPut, "/fees/"+factory.Hex(), setFeeBody(25, sig))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodGet, "/fees/"+factory.Hex(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fee FeeResponse
	require.NoError(t, json.Unmarshal(body, &fee))
	assert.Equal(t, uint16(25), fee.FeeBps)

	// the nonce moved, so replaying the same signature recovers a stranger
	resp, _ = s.do(t, http.MethodPut, "/fees/"+factory.Hex(), setFeeBody(25, sig))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFees_Rejections(t *testing.T) {
	s := newTestServer(t)

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := &testServer{key: stranger}
	resp, _ := s.do(t, http.MethodPut, "/fees/"+factory.Hex(), setFeeBody(10, other.sign(t, factory, 10, 1)))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/fees/"+factory.Hex(), setFeeBody(10_000, s.sign(t, factory, 10_000, 1)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/fees/"+factory.Hex(), setFeeBody(10, "0x1234"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/fees/"+factory.Hex(), strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fee, err := s.registry.Fee(factory)
	require.NoError(t, err)
	assert.Equal(t, uint16(30), fee)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodGet, "/quote/partition?pool="+s.pool.Hex()+"&base="+tokenA.Hex()+"&amount=100", nil)

	resp, body := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `funnel_operations_total{op="quote_partition",result="ok"} 1`)
}

func TestMapError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name string
		err  error
		want *fiber.Error
	}{
		{"empty pool", fmt.Errorf("swap: %w", uniswapv2.ErrInsufficientLiquidity), ErrLiquidityUnprocessable},
		{"zero output", uniswapv2.ErrInsufficientOutput, ErrLiquidityUnprocessable},
		{"overflow", fmt.Errorf("mint: %w", fixedpoint.ErrOverflow), ErrOverflowUnprocessable},
		{"not owner", feeregistry.ErrUnauthorized, ErrNotOwnerForbidden},
		{"unknown", errors.New("node down"), ErrQuoteFailedInternal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got *fiber.Error
			require.ErrorAs(t, mapError(logger, tc.err), &got)
			assert.Equal(t, tc.want.Code, got.Code)
			assert.Equal(t, tc.want.Message, got.Message)
		})
	}
}
