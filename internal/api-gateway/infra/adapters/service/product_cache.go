package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/cache"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

var _ ports.ProductCache = (*redisProductCache)(nil)

// redisProductCache keeps getProduct results in Redis. Every failure is
// treated as a miss: the ledger stays the source of truth.
type redisProductCache struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewProductCache returns a product read cache over c. A nil c disables
// caching.
func NewProductCache(c cache.Cache, ttl time.Duration) ports.ProductCache {
	if c == nil {
		return noopProductCache{}
	}
	return &redisProductCache{cache: c, ttl: ttl}
}

// cachedProduct is the stored form. Wide integers travel as decimal strings.
type cachedProduct struct {
	ID          wire.Int `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       wire.Int `json:"price"`
	Stock       wire.Int `json:"stock"`
	IsActive    bool     `json:"isActive"`
	Seller      string   `json:"seller"`
}

func (c *redisProductCache) key(id *big.Int) string {
	return c.cache.GenerateKey("product", id.String())
}

func (c *redisProductCache) Get(ctx context.Context, id *big.Int) (*entity.Product, bool) {
	raw, err := c.cache.Get(ctx, c.key(id))
	if err != nil {
		slog.WarnContext(ctx, "product cache read failed", "product_id", id.String(), "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var cp cachedProduct
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		slog.WarnContext(ctx, "discarding malformed cached product", "product_id", id.String(), "error", err)
		return nil, false
	}
	return &entity.Product{
		ID:          cp.ID.Big(),
		Name:        cp.Name,
		Description: cp.Description,
		Price:       cp.Price.Big(),
		Stock:       cp.Stock.Big(),
		IsActive:    cp.IsActive,
		Seller:      entity.Account(cp.Seller),
	}, true
}

func (c *redisProductCache) Set(ctx context.Context, p *entity.Product) {
	if p == nil || p.ID == nil {
		return
	}
	data, err := wire.Marshal(p)
	if err != nil {
		slog.WarnContext(ctx, "product cache encode failed", "product_id", p.ID.String(), "error", err)
		return
	}
	if err := c.cache.Set(ctx, c.key(p.ID), data, c.ttl); err != nil {
		slog.WarnContext(ctx, "product cache write failed", "product_id", p.ID.String(), "error", err)
	}
}

func (c *redisProductCache) Invalidate(ctx context.Context, id *big.Int) {
	if id == nil {
		return
	}
	if err := c.cache.Delete(ctx, c.key(id)); err != nil {
		slog.WarnContext(ctx, "product cache invalidation failed", "product_id", id.String(), "error", err)
	}
}

type noopProductCache struct{}

func (noopProductCache) Get(context.Context, *big.Int) (*entity.Product, bool) { return nil, false }
func (noopProductCache) Set(context.Context, *entity.Product)                  {}
func (noopProductCache) Invalidate(context.Context, *big.Int)                  {}
