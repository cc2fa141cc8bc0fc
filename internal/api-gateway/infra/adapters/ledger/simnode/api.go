package simnode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ethAPI is registered under the "eth" namespace; every exported method is
// an RPC method.
type ethAPI struct {
	node *Node
}

type txArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a txArgs) from() common.Address {
	if a.From == nil {
		return common.Address{}
	}
	return *a.From
}

func (a txArgs) value() *big.Int {
	if a.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Value.ToInt())
}

func (a txArgs) gas() uint64 {
	if a.Gas == nil {
		return 0
	}
	return uint64(*a.Gas)
}

func (a txArgs) input() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

type receiptJSON struct {
	TxHash            common.Hash     `json:"transactionHash"`
	TxIndex           hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	Status            hexutil.Uint64  `json:"status"`
	Logs              []logJSON       `json:"logs"`
}

type logJSON struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	LogIndex hexutil.Uint64 `json:"logIndex"`
}

// Call implements eth_call. The block argument is accepted but ignored: the
// node only keeps the latest state.
func (api *ethAPI) Call(args txArgs, block *string) (hexutil.Bytes, error) {
	return api.node.call(args)
}

// SendTransaction implements eth_sendTransaction.
func (api *ethAPI) SendTransaction(args txArgs) (common.Hash, error) {
	return api.node.sendTransaction(args)
}

// GetTransactionReceipt implements eth_getTransactionReceipt.
func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (*receiptJSON, error) {
	return api.node.receipt(hash)
}

// Accounts implements eth_accounts.
func (api *ethAPI) Accounts() []common.Address {
	return api.node.Accounts()
}

// ChainId implements eth_chainId.
func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(ChainID))
}
