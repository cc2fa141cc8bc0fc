package entity

import "math/big"

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	TransactionHash   string   `json:"transactionHash"`
	BlockHash         string   `json:"blockHash"`
	BlockNumber       *big.Int `json:"blockNumber"`
	From              Account  `json:"from"`
	To                Account  `json:"to"`
	GasUsed           uint64   `json:"gasUsed"`
	CumulativeGasUsed uint64   `json:"cumulativeGasUsed"`
	EffectiveGasPrice *big.Int `json:"effectiveGasPrice,omitempty"`
	Status            uint64   `json:"status"`
	Events            []Event  `json:"events"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool { return r != nil && r.Status == 1 }

// Event is a decoded contract log. Name is empty when the log does not match
// any event in the contract interface.
type Event struct {
	Name        string         `json:"event,omitempty"`
	Address     Account        `json:"address"`
	LogIndex    uint64         `json:"logIndex"`
	Topics      []string       `json:"topics"`
	Data        string         `json:"data"`
	ReturnValue map[string]any `json:"returnValues,omitempty"`
}

// TxOptions carries the sender-side parameters of a state-changing call.
type TxOptions struct {
	From  Account
	Value *big.Int
	Gas   uint64
}
