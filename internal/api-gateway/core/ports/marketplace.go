package ports

import (
	"context"
	"math/big"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
)

type MarketplaceService interface {
	CreateProduct(ctx context.Context, in entity.CreateProduct) (*entity.Receipt, error)
	GetProduct(ctx context.Context, id *big.Int) (*entity.Product, error)
	UpdateProduct(ctx context.Context, in entity.UpdateProduct) (*entity.Receipt, error)
	PurchaseProduct(ctx context.Context, in entity.PurchaseRequest) (*entity.Purchase, error)
	SellerProducts(ctx context.Context) ([]*entity.Product, error)
	OrdersOf(ctx context.Context, buyer entity.Account) ([]*big.Int, error)
	BuyerOrders(ctx context.Context, buyerRef string) (*entity.BuyerOrders, error)
}

// AccountResolver maps roles onto ledger accounts.
type AccountResolver interface {
	Seller() entity.Account
	Buyer(ref string) (entity.Account, error)
	Size() int
}

// ProductCache is a best-effort read cache in front of getProduct.
type ProductCache interface {
	Get(ctx context.Context, id *big.Int) (*entity.Product, bool)
	Set(ctx context.Context, p *entity.Product)
	Invalidate(ctx context.Context, id *big.Int)
}
