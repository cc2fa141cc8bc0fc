package simnode

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Gas charged per method. A transaction whose gas limit is below the charge
// runs out of gas.
var gasCost = map[string]uint64{
	"createProduct":     120_000,
	"updateProduct":     60_000,
	"purchaseProduct":   150_000,
	"getProduct":        30_000,
	"getSellerProducts": 30_000,
	"userOrders":        30_000,
	"getBuyerOrders":    30_000,
}

// errOutOfGas is reported by the executor when the gas limit is too low.
var errOutOfGas = errors.New("out of gas")

// revertError is a contract-level rejection carrying an Error(string) reason.
type revertError struct {
	reason string
}

func (e *revertError) Error() string { return "execution reverted: " + e.reason }

func revert(reason string) error { return &revertError{reason: reason} }

type product struct {
	id          *big.Int
	name        string
	description string
	price       *big.Int
	stock       *big.Int
	isActive    bool
	seller      common.Address
}

// productTuple is the ABI shape of getProduct's return value.
type productTuple struct {
	ID          *big.Int       `abi:"id"`
	Name        string         `abi:"name"`
	Description string         `abi:"description"`
	Price       *big.Int       `abi:"price"`
	Stock       *big.Int       `abi:"stock"`
	IsActive    bool           `abi:"isActive"`
	Seller      common.Address `abi:"seller"`
}

type order struct {
	id         *big.Int
	productID  *big.Int
	buyer      common.Address
	quantity   *big.Int
	totalPrice *big.Int
}

type logEntry struct {
	topics []common.Hash
	data   []byte
}

// marketplace is the contract state. Callers hold the node lock.
type marketplace struct {
	abi            abi.ABI
	products       map[string]*product
	nextProductID  int64
	orders         []*order
	userOrders     map[common.Address][]*big.Int
	sellerProducts map[common.Address][]*big.Int
}

func newMarketplace(contractABI abi.ABI) *marketplace {
	return &marketplace{
		abi:            contractABI,
		products:       make(map[string]*product),
		nextProductID:  1,
		userOrders:     make(map[common.Address][]*big.Int),
		sellerProducts: make(map[common.Address][]*big.Int),
	}
}

// execution is the outcome of running one call against the contract.
type execution struct {
	output  []byte
	logs    []logEntry
	gasUsed uint64
	// commit applies the state change; nil for views and failed runs.
	commit func()
}

// execute runs input as sent by from with value attached. State is only
// changed when the caller invokes commit on the result.
func (m *marketplace) execute(from common.Address, value *big.Int, gas uint64, input []byte) (*execution, error) {
	if len(input) < 4 {
		return nil, revert("")
	}
	method, err := m.abi.MethodById(input[:4])
	if err != nil {
		return nil, revert("")
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, revert("")
	}
	cost := gasCost[method.Name]
	if gas > 0 && gas < cost {
		return &execution{gasUsed: gas}, errOutOfGas
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return nil, revert("")
	}

	exec := &execution{gasUsed: cost}
	switch method.Name {
	case "createProduct":
		err = m.createProduct(exec, from, args)
	case "updateProduct":
		err = m.updateProduct(exec, from, args)
	case "purchaseProduct":
		err = m.purchaseProduct(exec, from, value, args)
	case "getProduct":
		var p *product
		if p, err = m.product(args[0].(*big.Int)); err == nil {
			exec.output, err = method.Outputs.Pack(p.tuple())
		}
	case "getSellerProducts":
		exec.output, err = method.Outputs.Pack(copyIDs(m.sellerProducts[from]))
	case "userOrders":
		exec.output, err = method.Outputs.Pack(copyIDs(m.userOrders[args[0].(common.Address)]))
	case "getBuyerOrders":
		exec.output, err = method.Outputs.Pack(copyIDs(m.userOrders[from]))
	default:
		err = revert("")
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func (m *marketplace) createProduct(exec *execution, from common.Address, args []any) error {
	name, description := args[0].(string), args[1].(string)
	price, stock := args[2].(*big.Int), args[3].(*big.Int)
	if name == "" {
		return revert("Name is required")
	}
	if price.Sign() <= 0 {
		return revert("Price must be greater than zero")
	}

	id := big.NewInt(m.nextProductID)
	exec.logs = append(exec.logs, m.event("ProductCreated", id, name, price, stock, from))
	exec.commit = func() {
		m.nextProductID++
		m.products[id.String()] = &product{
			id:          id,
			name:        name,
			description: description,
			price:       new(big.Int).Set(price),
			stock:       new(big.Int).Set(stock),
			isActive:    true,
			seller:      from,
		}
		m.sellerProducts[from] = append(m.sellerProducts[from], id)
	}
	return nil
}

func (m *marketplace) updateProduct(exec *execution, from common.Address, args []any) error {
	p, err := m.product(args[0].(*big.Int))
	if err != nil {
		return err
	}
	if p.seller != from {
		return revert("Only seller can update")
	}
	name, description := args[1].(string), args[2].(string)
	price, isActive, stock := args[3].(*big.Int), args[4].(bool), args[5].(*big.Int)
	if price.Sign() <= 0 {
		return revert("Price must be greater than zero")
	}

	exec.logs = append(exec.logs, m.event("ProductUpdated", p.id, name, price, stock, isActive))
	exec.commit = func() {
		p.name = name
		p.description = description
		p.price = new(big.Int).Set(price)
		p.isActive = isActive
		p.stock = new(big.Int).Set(stock)
	}
	return nil
}

func (m *marketplace) purchaseProduct(exec *execution, from common.Address, value *big.Int, args []any) error {
	p, err := m.product(args[0].(*big.Int))
	if err != nil {
		return err
	}
	quantity := args[1].(*big.Int)
	switch {
	case !p.isActive:
		return revert("Product is not active")
	case quantity.Sign() <= 0:
		return revert("Quantity must be greater than zero")
	case p.stock.Cmp(quantity) < 0:
		return revert("Insufficient stock")
	}
	total := new(big.Int).Mul(p.price, quantity)
	if value.Cmp(total) != 0 {
		return revert("Incorrect payment amount")
	}

	orderID := big.NewInt(int64(len(m.orders) + 1))
	exec.logs = append(exec.logs, m.event("ProductPurchased", orderID, p.id, from, quantity, total))
	exec.commit = func() {
		p.stock = new(big.Int).Sub(p.stock, quantity)
		m.orders = append(m.orders, &order{
			id:         orderID,
			productID:  p.id,
			buyer:      from,
			quantity:   new(big.Int).Set(quantity),
			totalPrice: total,
		})
		m.userOrders[from] = append(m.userOrders[from], orderID)
	}
	return nil
}

func (m *marketplace) product(id *big.Int) (*product, error) {
	p, ok := m.products[id.String()]
	if !ok {
		return nil, revert("Product does not exist")
	}
	return p, nil
}

// event encodes a log for the named event. Values are given in declaration
// order, indexed ones included.
func (m *marketplace) event(name string, values ...any) logEntry {
	ev := m.abi.Events[name]
	entry := logEntry{topics: []common.Hash{ev.ID}}
	var data []any
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, values[i])
			continue
		}
		switch v := values[i].(type) {
		case *big.Int:
			entry.topics = append(entry.topics, common.BigToHash(v))
		case common.Address:
			entry.topics = append(entry.topics, common.BytesToHash(v.Bytes()))
		}
	}
	// Packing only fails on a mismatch with the embedded interface.
	entry.data, _ = ev.Inputs.NonIndexed().Pack(data...)
	return entry
}

func (p *product) tuple() productTuple {
	return productTuple{
		ID:          p.id,
		Name:        p.name,
		Description: p.description,
		Price:       p.price,
		Stock:       p.stock,
		IsActive:    p.isActive,
		Seller:      p.seller,
	}
}

func copyIDs(ids []*big.Int) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).Set(id)
	}
	return out
}
