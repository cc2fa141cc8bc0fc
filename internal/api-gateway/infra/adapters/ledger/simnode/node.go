// Package simnode runs an in-process Ethereum JSON-RPC node hosting the
// marketplace contract. It serves the handful of eth_ methods the gateway
// uses and is meant for tests and local development only: there is no EVM,
// no signing and no persistence.
package simnode

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/jcmexdev/marketplace-gateway/contracts"
)

// ContractAddress is where the simulated marketplace is deployed.
const ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// ChainID matches Ganache's default.
const ChainID = 1337

// Options tunes the simulated node.
type Options struct {
	// Accounts is the size of the managed account pool. Defaults to 10.
	Accounts int
	// RevertOnSend makes eth_sendTransaction fail with the revert error, the
	// way Ganache does, instead of mining a receipt with status 0.
	RevertOnSend bool
	// PendingPolls is how many receipt lookups report a mined transaction
	// as still pending.
	PendingPolls int
	// FailingPolls is how many receipt lookups fail with an RPC error
	// before the receipt is served.
	FailingPolls int
}

// Node is a simulated ledger node.
type Node struct {
	mu       sync.Mutex
	opts     Options
	server   *rpc.Server
	contract common.Address
	accounts []common.Address
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	market   *marketplace
	block    uint64
	receipts map[common.Hash]*pendingReceipt
	sent     int
}

type pendingReceipt struct {
	receipt  *receiptJSON
	polls    int
	failures int
}

// New starts a node with the marketplace contract deployed at ContractAddress.
func New(opts Options) (*Node, error) {
	if opts.Accounts <= 0 {
		opts.Accounts = 10
	}
	contractABI, err := ABI()
	if err != nil {
		return nil, err
	}

	n := &Node{
		opts:     opts,
		contract: common.HexToAddress(ContractAddress),
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		market:   newMarketplace(contractABI),
		receipts: make(map[common.Hash]*pendingReceipt),
	}
	funds := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	for i := 0; i < opts.Accounts; i++ {
		key := crypto.Keccak256([]byte(fmt.Sprintf("simnode account %d", i)))
		addr := common.BytesToAddress(key[12:])
		n.accounts = append(n.accounts, addr)
		n.balances[addr] = new(big.Int).Set(funds)
	}

	n.server = rpc.NewServer()
	if err := n.server.RegisterName("eth", &ethAPI{node: n}); err != nil {
		return nil, fmt.Errorf("simnode: register api: %w", err)
	}
	return n, nil
}

// ABI parses the embedded marketplace interface.
func ABI() (abi.ABI, error) {
	var artifact struct {
		ABI abi.ABI `json:"abi"`
	}
	if err := json.Unmarshal(contracts.Marketplace, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("simnode: parse embedded abi: %w", err)
	}
	return artifact.ABI, nil
}

// Client returns an in-process RPC client attached to the node.
func (n *Node) Client() *rpc.Client {
	return rpc.DialInProc(n.server)
}

// Close stops the RPC server.
func (n *Node) Close() {
	n.server.Stop()
}

// Contract returns the marketplace address.
func (n *Node) Contract() common.Address { return n.contract }

// Accounts returns the managed account pool.
func (n *Node) Accounts() []common.Address {
	return append([]common.Address(nil), n.accounts...)
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Sent counts the transactions accepted by eth_sendTransaction.
func (n *Node) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

func (n *Node) managed(addr common.Address) bool {
	for _, a := range n.accounts {
		if a == addr {
			return true
		}
	}
	return false
}

func (n *Node) call(args txArgs) ([]byte, error) {
	if args.To == nil || *args.To != n.contract {
		return nil, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	exec, err := n.market.execute(args.from(), args.value(), args.gas(), args.input())
	if err != nil {
		return nil, rpcError(err)
	}
	return exec.output, nil
}

func (n *Node) sendTransaction(args txArgs) (common.Hash, error) {
	if args.From == nil || !n.managed(*args.From) {
		return common.Hash{}, errors.New("sender account not recognized")
	}
	if args.To == nil || *args.To != n.contract {
		return common.Hash{}, errors.New("only calls to the marketplace contract are supported")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	from, value := *args.From, args.value()
	if n.balances[from].Cmp(value) < 0 {
		return common.Hash{}, errors.New("sender doesn't have enough funds to send tx")
	}

	exec, err := n.market.execute(from, value, args.gas(), args.input())
	if err != nil && n.opts.RevertOnSend {
		return common.Hash{}, rpcError(err)
	}

	nonce := n.nonces[from]
	n.nonces[from]++
	n.sent++
	n.block++
	hash := crypto.Keccak256Hash(from.Bytes(), binary.BigEndian.AppendUint64(nil, nonce), args.input())

	r := &receiptJSON{
		TxHash:            hash,
		BlockHash:         crypto.Keccak256Hash(binary.BigEndian.AppendUint64(nil, n.block)),
		BlockNumber:       (*hexutil.Big)(new(big.Int).SetUint64(n.block)),
		From:              from,
		To:                &n.contract,
		EffectiveGasPrice: (*hexutil.Big)(big.NewInt(params.GWei)),
		Logs:              []logJSON{},
	}
	switch {
	case err != nil:
		r.Status = 0
		r.GasUsed = hexutil.Uint64(args.gas())
		if exec != nil {
			r.GasUsed = hexutil.Uint64(exec.gasUsed)
		}
	default:
		r.Status = 1
		r.GasUsed = hexutil.Uint64(exec.gasUsed)
		if exec.commit != nil {
			exec.commit()
		}
		n.balances[from].Sub(n.balances[from], value)
		for i, l := range exec.logs {
			r.Logs = append(r.Logs, logJSON{
				Address:  n.contract,
				Topics:   l.topics,
				Data:     l.data,
				LogIndex: hexutil.Uint64(i),
			})
		}
	}
	r.CumulativeGasUsed = r.GasUsed
	n.receipts[hash] = &pendingReceipt{receipt: r}
	return hash, nil
}

func (n *Node) receipt(hash common.Hash) (*receiptJSON, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.receipts[hash]
	if !ok {
		return nil, nil
	}
	if p.failures < n.opts.FailingPolls {
		p.failures++
		return nil, errors.New("receipt index unavailable")
	}
	if p.polls < n.opts.PendingPolls {
		p.polls++
		return nil, nil
	}
	return p.receipt, nil
}

// rpcError converts an execution failure into the JSON-RPC error geth
// reports: code 3 with the ABI-encoded Error(string) as data for reverts.
func rpcError(err error) error {
	var rev *revertError
	if errors.As(err, &rev) {
		return &revertRPCError{reason: rev.reason}
	}
	return err
}

type revertRPCError struct {
	reason string
}

func (e *revertRPCError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

func (e *revertRPCError) ErrorCode() int { return 3 }

func (e *revertRPCError) ErrorData() interface{} {
	if e.reason == "" {
		return nil
	}
	return hexutil.Encode(encodeRevert(e.reason))
}

var (
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	stringArgs     = abi.Arguments{{Type: mustType("string")}}
)

func encodeRevert(reason string) []byte {
	packed, _ := stringArgs.Pack(reason)
	return append(append([]byte{}, revertSelector...), packed...)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
