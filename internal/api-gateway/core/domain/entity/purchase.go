package entity

import "math/big"

type PurchaseRequest struct {
	ProductID *big.Int
	Quantity  *big.Int
	// Buyer is a pool index or an address; empty selects the default buyer.
	Buyer string
}

// Purchase is the outcome of the read-then-write purchase flow. The
// calculation fields are filled as the flow progresses, so a failed purchase
// still reports how far it got.
type Purchase struct {
	Buyer        Account
	ProductPrice *big.Int
	Quantity     *big.Int
	TotalPrice   *big.Int
	Receipt      *Receipt
	// Order is read back from the purchase event; nil when the receipt
	// carries none.
	Order *Order
}
