// Package accounts resolves the seller and buyer roles onto the account pool
// the ledger node manages. The pool is listed once at startup and is
// read-only afterwards.
package accounts

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
)

// Config maps roles to pool positions.
type Config struct {
	SellerIndex int
	BuyerIndex  int
}

// DefaultConfig treats account 1 as the seller and account 2 as the default buyer.
func DefaultConfig() Config {
	return Config{SellerIndex: 1, BuyerIndex: 2}
}

// Resolver implements ports.AccountResolver over a fixed pool.
type Resolver struct {
	pool []entity.Account
	cfg  Config
}

var _ ports.AccountResolver = (*Resolver)(nil)

// New lists the node's accounts once and builds a resolver over them.
func New(ctx context.Context, lister ports.AccountLister, cfg Config) (*Resolver, error) {
	pool, err := lister.Accounts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAccountResolutionFailed, err, "list accounts")
	}
	return NewFromPool(pool, cfg)
}

// NewFromPool builds a resolver over an already known pool.
func NewFromPool(pool []entity.Account, cfg Config) (*Resolver, error) {
	if cfg.SellerIndex < 0 || cfg.BuyerIndex < 0 {
		return nil, apperr.New(apperr.KindValidation, "account indexes must be non-negative")
	}
	if len(pool) <= cfg.SellerIndex {
		return nil, apperr.New(apperr.KindNoAccountsAvailable,
			"account pool has %d accounts, seller index %d is out of range", len(pool), cfg.SellerIndex)
	}
	return &Resolver{pool: append([]entity.Account(nil), pool...), cfg: cfg}, nil
}

// Seller returns the process-wide seller account.
func (r *Resolver) Seller() entity.Account {
	return r.pool[r.cfg.SellerIndex]
}

// Buyer resolves a buyer reference: empty for the default buyer, a decimal
// pool index, or a 0x-prefixed hex address which is returned as given. No custody or
// funding check is made for addresses.
func (r *Resolver) Buyer(ref string) (entity.Account, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return r.BuyerAt(r.cfg.BuyerIndex)
	}
	if has0xPrefix(ref) {
		if !common.IsHexAddress(ref) {
			return "", apperr.New(apperr.KindValidation, "buyer %q is not a valid address", ref)
		}
		return entity.Account(common.HexToAddress(ref).Hex()), nil
	}
	index, err := strconv.Atoi(ref)
	if errors.Is(err, strconv.ErrRange) {
		return "", apperr.New(apperr.KindNoAccountsAvailable,
			"account pool has %d accounts, buyer index %s is out of range", len(r.pool), ref)
	}
	if err != nil {
		return "", apperr.New(apperr.KindValidation, "buyer %q is neither an account index nor an address", ref)
	}
	return r.BuyerAt(index)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// BuyerAt returns the account at index. Index 0 selects the default buyer.
func (r *Resolver) BuyerAt(index int) (entity.Account, error) {
	if index < 0 {
		return "", apperr.New(apperr.KindValidation, "buyer index %d must be non-negative", index)
	}
	if index == 0 {
		index = r.cfg.BuyerIndex
	}
	if index >= len(r.pool) {
		return "", apperr.New(apperr.KindNoAccountsAvailable,
			"account pool has %d accounts, buyer index %d is out of range", len(r.pool), index)
	}
	return r.pool[index], nil
}

// Size returns the number of accounts in the pool.
func (r *Resolver) Size() int { return len(r.pool) }
