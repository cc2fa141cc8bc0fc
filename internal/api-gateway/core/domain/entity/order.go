package entity

import "math/big"

// Order is created by the contract as a side effect of a purchase.
type Order struct {
	ID         *big.Int `json:"id"`
	ProductID  *big.Int `json:"productId"`
	Buyer      Account  `json:"buyer"`
	Quantity   *big.Int `json:"quantity"`
	TotalPrice *big.Int `json:"totalPrice"`
}

// BuyerOrders lists the order ids placed by one buyer.
type BuyerOrders struct {
	Buyer    Account    `json:"buyer"`
	OrderIDs []*big.Int `json:"orderIds"`
}
