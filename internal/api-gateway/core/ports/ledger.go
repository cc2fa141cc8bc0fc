package ports

import (
	"context"
	"math/big"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
)

// Ledger invokes methods of the marketplace contract.
//
// Call is a read-only query and may be repeated freely. Send submits exactly
// one state-changing transaction and waits for its receipt; it never retries.
type Ledger interface {
	Call(ctx context.Context, from entity.Account, method string, args ...any) (any, error)
	Send(ctx context.Context, method string, opts entity.TxOptions, args ...any) (*entity.Receipt, error)
}

// AccountLister lists the accounts the ledger node manages.
type AccountLister interface {
	Accounts(ctx context.Context) ([]entity.Account, error)
}

// LedgerProbe reports whether the ledger node is reachable.
type LedgerProbe interface {
	ChainID(ctx context.Context) (*big.Int, error)
}
