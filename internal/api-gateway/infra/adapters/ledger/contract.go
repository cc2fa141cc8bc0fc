// Package ledger talks to the marketplace contract over Ethereum JSON-RPC.
//
// Queries go through eth_call. Transactions are submitted with
// eth_sendTransaction from node-managed accounts (the gateway holds no keys)
// and the receipt is polled until the transaction is mined.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/ports"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/txjournal"
)

const (
	// DefaultCallTimeout bounds a single read-only query.
	DefaultCallTimeout = 30 * time.Second
	// DefaultTxTimeout bounds submission plus the wait for the receipt.
	DefaultTxTimeout = 2 * time.Minute
	// DefaultPollInterval is the receipt polling interval.
	DefaultPollInterval = 500 * time.Millisecond
)

// Config holds the contract location and call bounds.
type Config struct {
	Address      string
	CallTimeout  time.Duration
	TxTimeout    time.Duration
	PollInterval time.Duration
}

// Observer receives one observation per ledger round trip. Outcome is "ok" or
// the apperr kind of the failure.
type Observer interface {
	ObserveLedgerCall(op, method, outcome string, elapsed time.Duration)
}

// Option configures a Contract.
type Option func(*Contract)

// WithObserver reports call outcomes and latencies to o.
func WithObserver(o Observer) Option {
	return func(c *Contract) { c.observer = o }
}

// WithJournal records every transaction submission in repo.
func WithJournal(repo txjournal.Repository) Option {
	return func(c *Contract) { c.journal = repo }
}

// Contract implements ports.Ledger for one deployed contract.
type Contract struct {
	client   *rpc.Client
	abi      abi.ABI
	address  common.Address
	cfg      Config
	tracer   trace.Tracer
	observer Observer
	journal  txjournal.Repository
}

var (
	_ ports.Ledger        = (*Contract)(nil)
	_ ports.AccountLister = (*Contract)(nil)
	_ ports.LedgerProbe   = (*Contract)(nil)
)

// Dial connects to the JSON-RPC endpoint at url.
func Dial(ctx context.Context, url string) (*rpc.Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "dial ledger %s", url)
	}
	return client, nil
}

// New binds client to the contract described by contractABI at cfg.Address.
func New(client *rpc.Client, contractABI abi.ABI, cfg Config, opts ...Option) (*Contract, error) {
	if client == nil {
		return nil, errors.New("ledger: nil rpc client")
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("ledger: invalid contract address %q", cfg.Address)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = DefaultTxTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Contract{
		client:  client,
		abi:     contractABI,
		address: common.HexToAddress(cfg.Address),
		cfg:     cfg,
		tracer:  otel.Tracer("github.com/jcmexdev/marketplace-gateway/ledger"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the contract address.
func (c *Contract) Address() entity.Account {
	return entity.Account(c.address.Hex())
}

// callArgs is the transaction object shared by eth_call and eth_sendTransaction.
type callArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data"`
}

// Call runs a read-only contract method and returns its decoded outputs:
// a single output is returned as is, several outputs as a map keyed by name.
func (c *Contract) Call(ctx context.Context, from entity.Account, method string, args ...any) (out any, err error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, apperr.New(apperr.KindUnknown, "contract interface has no method %q", method)
	}
	data, err := c.pack(method, args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	ctx, done := c.begin(ctx, "call", method)
	defer func() { done(err) }()

	msg := callArgs{To: &c.address, Data: data}
	if from != "" {
		addr, err := parseAccount(from)
		if err != nil {
			return nil, err
		}
		msg.From = &addr
	}

	var raw hexutil.Bytes
	if err := c.client.CallContext(ctx, &raw, "eth_call", msg, "latest"); err != nil {
		return nil, classify(method, err)
	}
	if len(raw) == 0 && len(m.Outputs) > 0 {
		return nil, apperr.New(apperr.KindLedgerRPC, "%s returned no data; is the contract deployed at %s?", method, c.address.Hex())
	}
	values, err := m.Outputs.Unpack(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedgerRPC, err, "decode %s result", method)
	}
	return decodeOutputs(m.Outputs, values), nil
}

// Send submits one state-changing transaction and waits for its receipt.
// It is never retried: after an ambiguous failure the transaction may still
// be mined, so retrying is left to the caller.
func (c *Contract) Send(ctx context.Context, method string, opts entity.TxOptions, args ...any) (receipt *entity.Receipt, err error) {
	if _, ok := c.abi.Methods[method]; !ok {
		return nil, apperr.New(apperr.KindUnknown, "contract interface has no method %q", method)
	}
	from, err := parseAccount(opts.From)
	if err != nil {
		return nil, err
	}
	data, err := c.pack(method, args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()
	ctx, done := c.begin(ctx, "send", method)
	defer func() { done(err) }()

	msg := callArgs{From: &from, To: &c.address, Data: data}
	if opts.Gas > 0 {
		gas := hexutil.Uint64(opts.Gas)
		msg.Gas = &gas
	}
	value := "0"
	if opts.Value != nil && opts.Value.Sign() > 0 {
		msg.Value = (*hexutil.Big)(opts.Value)
		value = opts.Value.String()
	}

	sub := txjournal.Begin(ctx, c.journal, method, from.Hex(), value, opts.Gas)

	var hash common.Hash
	if err := c.client.CallContext(ctx, &hash, "eth_sendTransaction", msg); err != nil {
		err = classify(method, err)
		if apperr.KindOf(err) == apperr.KindLedgerCallReverted {
			sub.Reverted(ctx, apperr.ReasonOf(err))
		} else {
			sub.Failed(ctx, err)
		}
		return nil, err
	}
	sub.Submitted(ctx, hash.Hex())

	raw, err := c.waitForReceipt(ctx, hash)
	if err != nil {
		err = classify(method, err)
		sub.Failed(ctx, err)
		return nil, fmt.Errorf("transaction %s submitted but not confirmed: %w", hash.Hex(), err)
	}

	receipt = c.toReceipt(raw)
	if !receipt.Succeeded() {
		reason := c.replayRevert(ctx, msg, raw.BlockNumber)
		if reason == "" && opts.Gas > 0 && receipt.GasUsed >= opts.Gas {
			reason = "out of gas"
		}
		sub.Reverted(ctx, reason)
		return nil, apperr.Reverted(method, reason, nil)
	}
	sub.Confirmed(ctx)
	return receipt, nil
}

// Accounts lists the accounts the node manages.
func (c *Contract) Accounts(ctx context.Context) (accounts []entity.Account, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	ctx, done := c.begin(ctx, "rpc", "eth_accounts")
	defer func() { done(err) }()

	var addrs []common.Address
	if err := c.client.CallContext(ctx, &addrs, "eth_accounts"); err != nil {
		return nil, classify("eth_accounts", err)
	}
	out := make([]entity.Account, len(addrs))
	for i, a := range addrs {
		out[i] = entity.Account(a.Hex())
	}
	return out, nil
}

// ChainID reports the chain the node serves; used as a reachability probe.
func (c *Contract) ChainID(ctx context.Context) (id *big.Int, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	ctx, done := c.begin(ctx, "rpc", "eth_chainId")
	defer func() { done(err) }()

	var raw hexutil.Big
	if err := c.client.CallContext(ctx, &raw, "eth_chainId"); err != nil {
		return nil, classify("eth_chainId", err)
	}
	return raw.ToInt(), nil
}

// begin opens a span for one ledger round trip. The returned func ends the
// span and reports the outcome.
func (c *Contract) begin(ctx context.Context, op, method string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "ledger."+op+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ledger.method", method),
			attribute.String("ledger.contract", c.address.Hex()),
		),
	)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if c.observer != nil {
			c.observer.ObserveLedgerCall(op, method, outcome, time.Since(start))
		}
	}
}

func (c *Contract) waitForReceipt(ctx context.Context, hash common.Hash) (*rpcReceipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	// The lookup is a plain query: a failed poll is retried until the
	// transaction deadline.
	for {
		var r *rpcReceipt
		err := c.client.CallContext(ctx, &r, "eth_getTransactionReceipt", hash)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			slog.WarnContext(ctx, "receipt lookup failed, retrying", "tx", hash.Hex(), "error", err)
		case r != nil:
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes a failed transaction as a call against the block
// it was mined in to recover the revert reason.
func (c *Contract) replayRevert(ctx context.Context, msg callArgs, block *hexutil.Big) string {
	blockArg := "latest"
	if block != nil {
		blockArg = hexutil.EncodeBig(block.ToInt())
	}
	var out hexutil.Bytes
	err := c.client.CallContext(ctx, &out, "eth_call", msg, blockArg)
	if err == nil {
		return ""
	}
	reason, _ := revertReason(err)
	return reason
}

func parseAccount(a entity.Account) (common.Address, error) {
	if !common.IsHexAddress(string(a)) {
		return common.Address{}, apperr.New(apperr.KindValidation, "invalid account address %q", a)
	}
	return common.HexToAddress(string(a)), nil
}

// pack encodes a method call. Accounts are accepted in their entity form.
func (c *Contract) pack(method string, args []any) ([]byte, error) {
	converted := make([]any, len(args))
	for i, a := range args {
		acc, ok := a.(entity.Account)
		if !ok {
			converted[i] = a
			continue
		}
		addr, err := parseAccount(acc)
		if err != nil {
			return nil, err
		}
		converted[i] = addr
	}
	data, err := c.abi.Pack(method, converted...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "encode %s arguments", method)
	}
	return data, nil
}
