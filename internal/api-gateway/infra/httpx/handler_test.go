package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/marketplace-gateway/contracts"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/accounts"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/ledger"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/ledger/simnode"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/adapters/service"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/observability"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/requestmeta"
)

type gateway struct {
	node   *simnode.Node
	server *httptest.Server
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	node, err := simnode.New(simnode.Options{})
	require.NoError(t, err)
	client := node.Client()
	t.Cleanup(func() {
		client.Close()
		node.Close()
	})

	parsed, err := ledger.ParseABI(contracts.Marketplace)
	require.NoError(t, err)
	contract, err := ledger.New(client, parsed, ledger.Config{
		Address:      simnode.ContractAddress,
		CallTimeout:  time.Second,
		TxTimeout:    2 * time.Second,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	resolver, err := accounts.New(context.Background(), contract, accounts.DefaultConfig())
	require.NoError(t, err)

	svc := service.NewMarketplaceService(contract, resolver, nil, service.DefaultConfig())
	handler := NewHandler(svc, resolver, contract, "3000")
	srv := httptest.NewServer(NewRouter(handler, RouterOptions{
		Metrics:        observability.NewMetrics(),
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(srv.Close)
	return &gateway{node: node, server: srv}
}

func (g *gateway) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, g.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (g *gateway) createPen(t *testing.T) {
	t.Helper()
	status, body := g.do(t, http.MethodPost, "/product/create",
		`{"name":"Pen","description":"Blue ink","priceInEther":"0.01","stock":5}`)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "Product Created", body["status"])
}

func product(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	p, ok := body["product"].(map[string]any)
	require.True(t, ok, "response has no product: %v", body)
	return p
}

func TestCreateThenGetProduct(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)

	status, body := g.do(t, http.MethodGet, "/product/1", "")
	require.Equal(t, http.StatusOK, status)
	p := product(t, body)
	assert.Equal(t, "1", p["id"])
	assert.Equal(t, "Pen", p["name"])
	assert.Equal(t, "10000000000000000", p["price"])
	assert.Equal(t, "0.01", p["priceInEther"])
	assert.Equal(t, "5", p["stock"])
	assert.Equal(t, true, p["isActive"])
	assert.Equal(t, g.node.Accounts()[1].Hex(), p["seller"])
}

func TestCreateReturnsDecodedEvent(t *testing.T) {
	g := newGateway(t)
	status, body := g.do(t, http.MethodPost, "/product/create",
		`{"name":"Pen","priceInEther":0.5,"stock":"3"}`)
	require.Equal(t, http.StatusOK, status, body)

	tx := body["tx"].(map[string]any)
	assert.Equal(t, float64(1), tx["status"])
	events := tx["events"].([]any)
	require.Len(t, events, 1)
	event := events[0].(map[string]any)
	assert.Equal(t, "ProductCreated", event["event"])
	values := event["returnValues"].(map[string]any)
	assert.Equal(t, "500000000000000000", values["price"])
	assert.Equal(t, "3", values["stock"])
}

func TestPurchaseReportsTypeInfo(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)
	buyer := g.node.Accounts()[2]
	before := g.node.Balance(buyer)

	status, body := g.do(t, http.MethodPost, "/product/purchase", `{"productId":1,"quantity":3}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Product Purchased", body["status"])

	info := body["typeInfo"].(map[string]any)
	beforeCalc := info["beforeCalculation"].(map[string]any)
	assert.Equal(t, map[string]any{"value": "10000000000000000", "type": "uint256"}, beforeCalc["productPrice"])
	assert.Equal(t, map[string]any{"value": "3", "type": "uint256"}, beforeCalc["quantity"])
	afterCalc := info["afterCalculation"].(map[string]any)
	assert.Equal(t, map[string]any{"value": "30000000000000000", "type": "uint256"}, afterCalc["totalPrice"])

	assert.Equal(t, map[string]any{
		"id":         "1",
		"productId":  "1",
		"buyer":      buyer.Hex(),
		"quantity":   "3",
		"totalPrice": "30000000000000000",
	}, body["order"])

	spent := before.Sub(before, g.node.Balance(buyer))
	assert.Equal(t, "30000000000000000", spent.String())

	_, body = g.do(t, http.MethodGet, "/product/1", "")
	assert.Equal(t, "2", product(t, body)["stock"])

	_, body = g.do(t, http.MethodGet, "/orders/"+buyer.Hex(), "")
	assert.Equal(t, []any{"1"}, body["orderIds"])

	_, body = g.do(t, http.MethodGet, "/buyer/orders", "")
	assert.Equal(t, buyer.Hex(), body["buyer"])
	assert.Equal(t, []any{"1"}, body["orderIds"])
}

func TestPurchaseBeyondStockIsRejectedBeforeSubmitting(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)
	sent := g.node.Sent()

	status, body := g.do(t, http.MethodPost, "/product/purchase", `{"productId":1,"quantity":6}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ProductUnavailable", body["code"])
	assert.Equal(t, map[string]any{
		"productPrice": "uint256",
		"quantity":     "uint256",
		"totalPrice":   "undefined",
	}, body["typeInfo"])
	assert.Equal(t, sent, g.node.Sent())

	_, body = g.do(t, http.MethodGet, "/product/1", "")
	assert.Equal(t, "5", product(t, body)["stock"])
}

func TestPurchaseWithBuyerIndex(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)
	buyer := g.node.Accounts()[4]

	status, body := g.do(t, http.MethodPost, "/product/purchase", `{"productId":"1","quantity":"1","buyerIndex":4}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, buyer.Hex(), body["tx"].(map[string]any)["from"])

	_, body = g.do(t, http.MethodGet, "/buyer/orders?buyer=4", "")
	assert.Equal(t, []any{"1"}, body["orderIds"])
}

func TestPurchaseWithBuyerIndexOutOfRange(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)

	status, body := g.do(t, http.MethodPost, "/product/purchase", `{"productId":1,"quantity":1,"buyerIndex":99}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NoAccountsAvailable", body["code"])
}

func TestPurchaseOfUnknownProduct(t *testing.T) {
	g := newGateway(t)

	status, body := g.do(t, http.MethodPost, "/product/purchase", `{"productId":42,"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "LedgerCallReverted", body["code"])
	assert.Contains(t, body["error"], "Product does not exist")
	assert.Equal(t, "undefined", body["typeInfo"].(map[string]any)["productPrice"])
}

func TestInvalidAmountNeverReachesTheLedger(t *testing.T) {
	g := newGateway(t)
	sent := g.node.Sent()

	status, body := g.do(t, http.MethodPost, "/product/create", `{"name":"Pen","priceInEther":"abc","stock":5}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidAmount", body["code"])
	assert.Equal(t, sent, g.node.Sent())
}

func TestRequestValidation(t *testing.T) {
	g := newGateway(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing name", "/product/create", `{"priceInEther":"1","stock":1}`},
		{"negative stock", "/product/create", `{"name":"Pen","priceInEther":"1","stock":-1}`},
		{"fractional stock", "/product/create", `{"name":"Pen","priceInEther":"1","stock":1.5}`},
		{"stock beyond uint256", "/product/create", `{"name":"Pen","priceInEther":"1","stock":"115792089237316195423570985008687907853269984665640564039457584007913129639936"}`},
		{"malformed body", "/product/create", `{"name":`},
		{"empty body", "/product/create", ``},
		{"update without isActive", "/product/update", `{"id":1,"name":"Pen","priceInEther":"1","stock":1}`},
		{"zero quantity", "/product/purchase", `{"productId":1,"quantity":0}`},
		{"bad buyer address", "/product/purchase", `{"productId":1,"quantity":1,"buyer":"0x123"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := g.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "ValidationError", body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUpdateProduct(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)

	status, body := g.do(t, http.MethodPost, "/product/update",
		`{"id":1,"name":"Pencil","description":"HB","priceInEther":"0.02","isActive":false,"stock":7}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Product Updated", body["status"])

	_, body = g.do(t, http.MethodGet, "/product/1", "")
	p := product(t, body)
	assert.Equal(t, "Pencil", p["name"])
	assert.Equal(t, "20000000000000000", p["price"])
	assert.Equal(t, false, p["isActive"])

	status, body = g.do(t, http.MethodPost, "/product/purchase", `{"productId":1,"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ProductUnavailable", body["code"])
}

func TestSellerProducts(t *testing.T) {
	g := newGateway(t)
	g.createPen(t)
	status, _ := g.do(t, http.MethodPost, "/product/create", `{"name":"Ink","priceInEther":"1","stock":9007199254740993}`)
	require.Equal(t, http.StatusOK, status)

	status, body := g.do(t, http.MethodGet, "/seller/products", "")
	require.Equal(t, http.StatusOK, status)
	products := body["products"].([]any)
	require.Len(t, products, 2)
	assert.Equal(t, "Pen", products[0].(map[string]any)["name"])
	assert.Equal(t, "1", products[1].(map[string]any)["priceInEther"])
	assert.Equal(t, "9007199254740993", products[1].(map[string]any)["stock"])
}

func TestProductIDMustBeAnInteger(t *testing.T) {
	g := newGateway(t)

	for _, id := range []string{"abc", "-1", "1.5"} {
		status, body := g.do(t, http.MethodGet, "/product/"+id, "")
		assert.Equal(t, http.StatusBadRequest, status, id)
		assert.Equal(t, "ValidationError", body["code"], id)
	}
}

func TestOrdersOfRejectsBadAddress(t *testing.T) {
	g := newGateway(t)

	status, body := g.do(t, http.MethodGet, "/orders/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ValidationError", body["code"])
}

func TestBuyerOrdersWithDecimalRefIsAnIndex(t *testing.T) {
	g := newGateway(t)

	status, body := g.do(t, http.MethodGet, "/buyer/orders?buyer=1234567890123456789012345678901234567890", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NoAccountsAvailable", body["code"])
}

func TestOrdersOfUnknownBuyerIsEmpty(t *testing.T) {
	g := newGateway(t)

	status, body := g.do(t, http.MethodGet, "/orders/0x000000000000000000000000000000000000dEaD", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["orderIds"])
}

func TestPortAndHealth(t *testing.T) {
	g := newGateway(t)

	resp, err := http.Get(g.server.URL + "/port")
	require.NoError(t, err)
	text, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Running on port 3000", string(text))
	assert.NotEmpty(t, resp.Header.Get(requestmeta.HeaderXRequestId))

	status, body := g.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1337", body["chainId"])
	assert.Equal(t, float64(10), body["accounts"])
}

func TestMetricsEndpoint(t *testing.T) {
	g := newGateway(t)
	g.do(t, http.MethodGet, "/product/abc", "")

	resp, err := http.Get(g.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), `marketplace_http_requests_total{code="400",route="/product/{id}"} 1`)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRateLimit(t *testing.T) {
	handler := NewHandler(nil, nil, nil, "3000")
	router := NewRouter(handler, RouterOptions{RateLimitPerMinute: 1})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/port", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/port", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	body := decodeBody(t, second)
	assert.Equal(t, "RateLimited", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := NewRouter(NewHandler(nil, nil, nil, "3000"), RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["code"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/product/create", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "ValidationError", decodeBody(t, rec)["code"])
}

func TestPanicIsReportedAsJSON(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/port", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Unknown", body["code"])
	assert.Equal(t, "internal server error", body["error"])
}

func TestRequestTimeoutBoundsContext(t *testing.T) {
	var deadline time.Time
	h := requestTimeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/port", nil))
	assert.False(t, deadline.IsZero())
}
