package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/accounts"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/cache"
)

type sentTx struct {
	method string
	opts   entity.TxOptions
	args   []any
}

// fakeLedger answers queries from a fixed product table and records sends.
type fakeLedger struct {
	mu       sync.Mutex
	products map[string]map[string]any
	seller   []any
	orders   map[entity.Account][]any
	calls    []string
	sent     []sentTx
	sendErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		products: map[string]map[string]any{},
		orders:   map[entity.Account][]any{},
	}
}

func (f *fakeLedger) addProduct(id int64, price string, stock int64, active bool) {
	p, _ := new(big.Int).SetString(price, 10)
	f.products[big.NewInt(id).String()] = map[string]any{
		"id":          big.NewInt(id),
		"name":        "Pen",
		"description": "Blue ink",
		"price":       p,
		"stock":       big.NewInt(stock),
		"isActive":    active,
		"seller":      string(pool[1]),
	}
	f.seller = append(f.seller, big.NewInt(id))
}

func (f *fakeLedger) Call(_ context.Context, from entity.Account, method string, args ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	switch method {
	case methodGetProduct:
		p, ok := f.products[args[0].(*big.Int).String()]
		if !ok {
			return nil, apperr.Reverted(method, "Product does not exist", nil)
		}
		return p, nil
	case methodGetSellerProducts:
		return f.seller, nil
	case methodUserOrders:
		return f.orders[args[0].(entity.Account)], nil
	case methodGetBuyerOrders:
		return f.orders[from], nil
	}
	return nil, errors.New("unexpected call " + method)
}

func (f *fakeLedger) Send(_ context.Context, method string, opts entity.TxOptions, args ...any) (*entity.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentTx{method: method, opts: opts, args: args})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &entity.Receipt{TransactionHash: "0x01", From: opts.From, Status: 1}, nil
}

func (f *fakeLedger) countCalls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

var pool = []entity.Account{
	"0x0000000000000000000000000000000000000A00",
	"0x0000000000000000000000000000000000000A01",
	"0x0000000000000000000000000000000000000A02",
	"0x0000000000000000000000000000000000000A03",
}

func newTestService(t *testing.T, ledger *fakeLedger, products *cacheHarness) *MarketplaceService {
	t.Helper()
	resolver, err := accounts.NewFromPool(pool, accounts.DefaultConfig())
	require.NoError(t, err)
	pc := NewProductCache(nil, 0)
	if products != nil {
		pc = products.cache
	}
	return NewMarketplaceService(ledger, resolver, pc, DefaultConfig())
}

type cacheHarness struct {
	mr    *miniredis.Miniredis
	cache ports.ProductCache
}

func newCacheHarness(t *testing.T) *cacheHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(mr.Addr(), "marketplace-gateway")
	t.Cleanup(func() { _ = c.Close() })
	return &cacheHarness{mr: mr, cache: NewProductCache(c, time.Minute)}
}

func TestPurchaseSendsTotalAsValue(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "10000000000000000", 5, true)
	svc := newTestService(t, ledger, nil)

	purchase, err := svc.PurchaseProduct(context.Background(), entity.PurchaseRequest{
		ProductID: big.NewInt(1),
		Quantity:  big.NewInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, pool[2], purchase.Buyer, "default buyer")
	assert.Equal(t, "30000000000000000", purchase.TotalPrice.String())
	assert.Equal(t, "10000000000000000", purchase.ProductPrice.String())
	require.NotNil(t, purchase.Receipt)

	require.Len(t, ledger.sent, 1)
	tx := ledger.sent[0]
	assert.Equal(t, methodPurchaseProduct, tx.method)
	assert.Equal(t, pool[2], tx.opts.From)
	assert.Equal(t, "30000000000000000", tx.opts.Value.String())
	assert.Equal(t, DefaultGasLimit, tx.opts.Gas)
}

func TestPurchaseWithExplicitBuyer(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 5, true)
	svc := newTestService(t, ledger, nil)

	purchase, err := svc.PurchaseProduct(context.Background(), entity.PurchaseRequest{
		ProductID: big.NewInt(1),
		Quantity:  big.NewInt(1),
		Buyer:     "3",
	})
	require.NoError(t, err)
	assert.Equal(t, pool[3], purchase.Buyer)
}

func TestPurchaseUnavailableNeverSubmits(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "10000000000000000", 0, true)
	ledger.addProduct(2, "10000000000000000", 10, false)
	svc := newTestService(t, ledger, nil)
	ctx := context.Background()

	purchase, err := svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(1), Quantity: big.NewInt(1)})
	assert.Equal(t, apperr.KindProductUnavailable, apperr.KindOf(err))
	require.NotNil(t, purchase)
	assert.NotNil(t, purchase.ProductPrice)
	assert.Nil(t, purchase.TotalPrice)

	_, err = svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(2), Quantity: big.NewInt(1)})
	assert.Equal(t, apperr.KindProductUnavailable, apperr.KindOf(err))

	assert.Empty(t, ledger.sent)
}

func TestPurchaseValidation(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 5, true)
	svc := newTestService(t, ledger, nil)
	ctx := context.Background()

	_, err := svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(1), Quantity: big.NewInt(0)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(1), Quantity: big.NewInt(1), Buyer: "7"})
	assert.Equal(t, apperr.KindNoAccountsAvailable, apperr.KindOf(err))

	_, err = svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(9), Quantity: big.NewInt(1)})
	assert.Equal(t, apperr.KindLedgerCallReverted, apperr.KindOf(err))

	assert.Empty(t, ledger.sent)
}

func TestPurchaseReportsRevert(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 5, true)
	ledger.sendErr = apperr.Reverted(methodPurchaseProduct, "Insufficient stock", nil)
	svc := newTestService(t, ledger, nil)

	purchase, err := svc.PurchaseProduct(context.Background(), entity.PurchaseRequest{ProductID: big.NewInt(1), Quantity: big.NewInt(2)})
	assert.Equal(t, apperr.KindLedgerCallReverted, apperr.KindOf(err))
	assert.Equal(t, "2", purchase.TotalPrice.String())
	assert.Nil(t, purchase.Receipt)
}

func TestCreateAndUpdateUseSeller(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 5, true)
	svc := newTestService(t, ledger, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, entity.CreateProduct{Name: "Pen", Price: big.NewInt(1), Stock: big.NewInt(1)})
	require.NoError(t, err)
	_, err = svc.UpdateProduct(ctx, entity.UpdateProduct{ID: big.NewInt(1), Name: "Pen", Price: big.NewInt(2), Stock: big.NewInt(1), IsActive: true})
	require.NoError(t, err)

	require.Len(t, ledger.sent, 2)
	for _, tx := range ledger.sent {
		assert.Equal(t, pool[1], tx.opts.From)
		assert.Nil(t, tx.opts.Value)
	}
	assert.Equal(t, []any{big.NewInt(1), "Pen", "", big.NewInt(2), true, big.NewInt(1)}, ledger.sent[1].args)

	_, err = svc.CreateProduct(ctx, entity.CreateProduct{Name: "Pen"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSellerProductsKeepsOrder(t *testing.T) {
	ledger := newFakeLedger()
	for i := int64(1); i <= 20; i++ {
		ledger.addProduct(i, "1", i, true)
	}
	svc := newTestService(t, ledger, nil)

	products, err := svc.SellerProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 20)
	for i, p := range products {
		assert.Equal(t, int64(i+1), p.ID.Int64())
		assert.Equal(t, int64(i+1), p.Stock.Int64())
	}
}

func TestSellerProductsFailsAsAWhole(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 1, true)
	ledger.seller = append(ledger.seller, big.NewInt(99))
	svc := newTestService(t, ledger, nil)

	_, err := svc.SellerProducts(context.Background())
	assert.Equal(t, apperr.KindLedgerCallReverted, apperr.KindOf(err))
}

func TestOrders(t *testing.T) {
	ledger := newFakeLedger()
	wide, _ := new(big.Int).SetString("9007199254740993", 10)
	ledger.orders[pool[2]] = []any{big.NewInt(1), wide}
	svc := newTestService(t, ledger, nil)
	ctx := context.Background()

	ids, err := svc.OrdersOf(ctx, pool[2])
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "9007199254740993", ids[1].String())

	orders, err := svc.BuyerOrders(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, pool[2], orders.Buyer)
	assert.Len(t, orders.OrderIDs, 2)

	orders, err = svc.BuyerOrders(ctx, "3")
	require.NoError(t, err)
	assert.Empty(t, orders.OrderIDs)
}

func TestGetProductReadsThroughCache(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "115792089237316195423570985008687907853269984665640564039457584007913129639935", 5, true)
	h := newCacheHarness(t)
	svc := newTestService(t, ledger, h)
	ctx := context.Background()

	first, err := svc.GetProduct(ctx, big.NewInt(1))
	require.NoError(t, err)
	second, err := svc.GetProduct(ctx, big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, 1, ledger.countCalls(methodGetProduct))
	assert.Equal(t, first.Price.String(), second.Price.String(), "cached prices stay exact")
	assert.Equal(t, first.Seller, second.Seller)
	assert.True(t, h.mr.Exists("marketplace-gateway:product:1"))

	// A purchase reads the ledger directly and invalidates the entry.
	_, err = svc.PurchaseProduct(ctx, entity.PurchaseRequest{ProductID: big.NewInt(1), Quantity: big.NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.countCalls(methodGetProduct))
	assert.False(t, h.mr.Exists("marketplace-gateway:product:1"))
}

func TestCacheOutageFallsBackToLedger(t *testing.T) {
	ledger := newFakeLedger()
	ledger.addProduct(1, "1", 5, true)
	h := newCacheHarness(t)
	h.mr.Close()
	svc := newTestService(t, ledger, h)

	p, err := svc.GetProduct(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "Pen", p.Name)
}

func TestDecodeProductPositional(t *testing.T) {
	p, err := decodeProduct([]any{"7", "Pen", "", "100", "3", true, "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "7", p.ID.String())
	assert.Equal(t, "100", p.Price.String())
	assert.True(t, p.IsActive)

	_, err = decodeProduct("nope")
	assert.Equal(t, apperr.KindLedgerRPC, apperr.KindOf(err))
}

func TestPurchasedOrderFromEvent(t *testing.T) {
	wide, _ := new(big.Int).SetString("9007199254740993", 10)
	receipt := &entity.Receipt{Events: []entity.Event{
		{Name: "ProductCreated", ReturnValue: map[string]any{"id": big.NewInt(1)}},
		{Name: "ProductPurchased", ReturnValue: map[string]any{
			"orderId":    big.NewInt(7),
			"productId":  big.NewInt(1),
			"buyer":      "0x0000000000000000000000000000000000000002",
			"quantity":   big.NewInt(3),
			"totalPrice": wide,
		}},
	}}

	order := purchasedOrder(receipt)
	require.NotNil(t, order)
	assert.Equal(t, "7", order.ID.String())
	assert.Equal(t, "1", order.ProductID.String())
	assert.Equal(t, entity.Account("0x0000000000000000000000000000000000000002"), order.Buyer)
	assert.Equal(t, "3", order.Quantity.String())
	assert.Equal(t, "9007199254740993", order.TotalPrice.String())

	assert.Nil(t, purchasedOrder(&entity.Receipt{}))
	assert.Nil(t, purchasedOrder(nil))
}
