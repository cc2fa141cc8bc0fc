package service

import (
	"context"
	"log/slog"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/units"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

// Contract methods invoked by the gateway.
const (
	methodCreateProduct     = "createProduct"
	methodUpdateProduct     = "updateProduct"
	methodPurchaseProduct   = "purchaseProduct"
	methodGetProduct        = "getProduct"
	methodGetSellerProducts = "getSellerProducts"
	methodUserOrders        = "userOrders"
	methodGetBuyerOrders    = "getBuyerOrders"

	eventProductPurchased = "ProductPurchased"
)

// DefaultGasLimit is the fixed gas limit of every transaction.
const DefaultGasLimit uint64 = 500000

// GasLimits are fixed per operation; gas is never estimated.
type GasLimits struct {
	Create   uint64
	Update   uint64
	Purchase uint64
}

type Config struct {
	Gas GasLimits
	// FanOut bounds concurrent getProduct queries when listing a seller's
	// products.
	FanOut int
}

func DefaultConfig() Config {
	return Config{
		Gas:    GasLimits{Create: DefaultGasLimit, Update: DefaultGasLimit, Purchase: DefaultGasLimit},
		FanOut: 8,
	}
}

// Ensure MarketplaceService implements the port at compile time.
var _ ports.MarketplaceService = (*MarketplaceService)(nil)

// MarketplaceService runs the marketplace flows against the ledger.
type MarketplaceService struct {
	ledger   ports.Ledger
	accounts ports.AccountResolver
	products ports.ProductCache
	cfg      Config
}

// NewMarketplaceService wires the flows. products may be nil.
func NewMarketplaceService(ledger ports.Ledger, accounts ports.AccountResolver, products ports.ProductCache, cfg Config) *MarketplaceService {
	if products == nil {
		products = noopProductCache{}
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultConfig().FanOut
	}
	return &MarketplaceService{ledger: ledger, accounts: accounts, products: products, cfg: cfg}
}

func (s *MarketplaceService) CreateProduct(ctx context.Context, in entity.CreateProduct) (*entity.Receipt, error) {
	if in.Price == nil || in.Stock == nil {
		return nil, apperr.New(apperr.KindValidation, "price and stock are required")
	}
	seller := s.accounts.Seller()
	slog.InfoContext(ctx, "creating product", "seller", seller, "name", in.Name, "price_wei", in.Price.String())

	receipt, err := s.ledger.Send(ctx, methodCreateProduct,
		entity.TxOptions{From: seller, Gas: s.cfg.Gas.Create},
		in.Name, in.Description, in.Price, in.Stock)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *MarketplaceService) GetProduct(ctx context.Context, id *big.Int) (*entity.Product, error) {
	if p, ok := s.products.Get(ctx, id); ok {
		return p, nil
	}
	p, err := s.readProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.products.Set(ctx, p)
	return p, nil
}

func (s *MarketplaceService) UpdateProduct(ctx context.Context, in entity.UpdateProduct) (*entity.Receipt, error) {
	if in.ID == nil || in.Price == nil || in.Stock == nil {
		return nil, apperr.New(apperr.KindValidation, "id, price and stock are required")
	}
	seller := s.accounts.Seller()
	slog.InfoContext(ctx, "updating product", "seller", seller, "product_id", in.ID.String())

	receipt, err := s.ledger.Send(ctx, methodUpdateProduct,
		entity.TxOptions{From: seller, Gas: s.cfg.Gas.Update},
		in.ID, in.Name, in.Description, in.Price, in.IsActive, in.Stock)
	if err != nil {
		return nil, err
	}
	s.products.Invalidate(ctx, in.ID)
	return receipt, nil
}

// PurchaseProduct reads the product, checks availability, and submits the
// purchase paying price × quantity. The availability check is advisory; the
// contract rejects purchases that became invalid in between. The returned
// Purchase is non-nil even on failure and records how far the flow got.
func (s *MarketplaceService) PurchaseProduct(ctx context.Context, in entity.PurchaseRequest) (*entity.Purchase, error) {
	purchase := &entity.Purchase{Quantity: in.Quantity}
	if in.ProductID == nil || in.Quantity == nil {
		return purchase, apperr.New(apperr.KindValidation, "productId and quantity are required")
	}
	if in.Quantity.Sign() <= 0 {
		return purchase, apperr.New(apperr.KindValidation, "quantity must be greater than zero")
	}

	buyer, err := s.accounts.Buyer(in.Buyer)
	if err != nil {
		return purchase, err
	}
	purchase.Buyer = buyer

	// Always read through to the ledger: a cached stock figure is too stale
	// to gate a payment on.
	product, err := s.readProduct(ctx, in.ProductID)
	if err != nil {
		return purchase, err
	}
	purchase.ProductPrice = product.Price

	if !product.Available(in.Quantity) {
		if !product.IsActive {
			return purchase, apperr.New(apperr.KindProductUnavailable, "product %s is not active", in.ProductID)
		}
		return purchase, apperr.New(apperr.KindProductUnavailable,
			"product %s has %s in stock, %s requested", in.ProductID, product.Stock, in.Quantity)
	}

	total, err := units.TotalPrice(product.Price, in.Quantity)
	if err != nil {
		return purchase, err
	}
	purchase.TotalPrice = total

	slog.InfoContext(ctx, "purchasing product",
		"buyer", buyer,
		"product_id", in.ProductID.String(),
		"quantity", in.Quantity.String(),
		"total_wei", total.String(),
	)
	receipt, err := s.ledger.Send(ctx, methodPurchaseProduct,
		entity.TxOptions{From: buyer, Value: total, Gas: s.cfg.Gas.Purchase},
		in.ProductID, in.Quantity)
	if err != nil {
		return purchase, err
	}
	s.products.Invalidate(ctx, in.ProductID)
	purchase.Receipt = receipt
	purchase.Order = purchasedOrder(receipt)
	return purchase, nil
}

// SellerProducts lists the seller's product ids and fetches each product.
// Fetches run concurrently; the result keeps the ledger's id order.
func (s *MarketplaceService) SellerProducts(ctx context.Context) ([]*entity.Product, error) {
	out, err := s.ledger.Call(ctx, s.accounts.Seller(), methodGetSellerProducts)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(methodGetSellerProducts, out)
	if err != nil {
		return nil, err
	}

	products := make([]*entity.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FanOut)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.GetProduct(gctx, id)
			if err != nil {
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *MarketplaceService) OrdersOf(ctx context.Context, buyer entity.Account) ([]*big.Int, error) {
	out, err := s.ledger.Call(ctx, "", methodUserOrders, buyer)
	if err != nil {
		return nil, err
	}
	return decodeIDs(methodUserOrders, out)
}

func (s *MarketplaceService) BuyerOrders(ctx context.Context, buyerRef string) (*entity.BuyerOrders, error) {
	buyer, err := s.accounts.Buyer(buyerRef)
	if err != nil {
		return nil, err
	}
	out, err := s.ledger.Call(ctx, buyer, methodGetBuyerOrders)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(methodGetBuyerOrders, out)
	if err != nil {
		return nil, err
	}
	return &entity.BuyerOrders{Buyer: buyer, OrderIDs: ids}, nil
}

func (s *MarketplaceService) readProduct(ctx context.Context, id *big.Int) (*entity.Product, error) {
	if id == nil {
		return nil, apperr.New(apperr.KindValidation, "product id is required")
	}
	out, err := s.ledger.Call(ctx, "", methodGetProduct, id)
	if err != nil {
		return nil, err
	}
	return decodeProduct(out)
}

var productFields = []string{"id", "name", "description", "price", "stock", "isActive", "seller"}

// decodeProduct reads a product from a getProduct result, either keyed by
// component name or positional.
func decodeProduct(out any) (*entity.Product, error) {
	var fields map[string]any
	switch v := out.(type) {
	case map[string]any:
		fields = v
	case []any:
		if len(v) < len(productFields) {
			return nil, unexpected(methodGetProduct, out)
		}
		fields = make(map[string]any, len(productFields))
		for i, name := range productFields {
			fields[name] = v[i]
		}
	default:
		return nil, unexpected(methodGetProduct, out)
	}

	p := &entity.Product{}
	var err error
	if p.ID, err = wire.BigInt(fields["id"]); err != nil {
		return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "decode %s id", methodGetProduct)
	}
	if p.Price, err = wire.BigInt(fields["price"]); err != nil {
		return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "decode %s price", methodGetProduct)
	}
	if p.Stock, err = wire.BigInt(fields["stock"]); err != nil {
		return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "decode %s stock", methodGetProduct)
	}
	p.Name, _ = fields["name"].(string)
	p.Description, _ = fields["description"].(string)
	p.IsActive, _ = fields["isActive"].(bool)
	seller, _ := fields["seller"].(string)
	p.Seller = entity.Account(seller)
	return p, nil
}

// purchasedOrder reads the order recorded by the ProductPurchased event.
func purchasedOrder(receipt *entity.Receipt) *entity.Order {
	if receipt == nil {
		return nil
	}
	for _, ev := range receipt.Events {
		if ev.Name != eventProductPurchased {
			continue
		}
		order := &entity.Order{}
		var err error
		if order.ID, err = wire.BigInt(ev.ReturnValue["orderId"]); err != nil {
			return nil
		}
		if order.ProductID, err = wire.BigInt(ev.ReturnValue["productId"]); err != nil {
			return nil
		}
		if order.Quantity, err = wire.BigInt(ev.ReturnValue["quantity"]); err != nil {
			return nil
		}
		if order.TotalPrice, err = wire.BigInt(ev.ReturnValue["totalPrice"]); err != nil {
			return nil
		}
		buyer, _ := ev.ReturnValue["buyer"].(string)
		order.Buyer = entity.Account(buyer)
		return order
	}
	return nil
}

func decodeIDs(method string, out any) ([]*big.Int, error) {
	switch v := out.(type) {
	case nil:
		return []*big.Int{}, nil
	case []*big.Int:
		return v, nil
	case []any:
		ids := make([]*big.Int, len(v))
		for i, raw := range v {
			id, err := wire.BigInt(raw)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "decode %s result", method)
			}
			ids[i] = id
		}
		return ids, nil
	default:
		return nil, unexpected(method, out)
	}
}

func unexpected(method string, out any) error {
	return apperr.New(apperr.KindLedgerRPC, "unexpected %s result of type %T", method, out)
}
