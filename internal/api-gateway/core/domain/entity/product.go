package entity

import "math/big"

// Product mirrors the contract's product record. Price is in the native unit.
type Product struct {
	ID          *big.Int `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *big.Int `json:"price"`
	Stock       *big.Int `json:"stock"`
	IsActive    bool     `json:"isActive"`
	Seller      Account  `json:"seller"`
}

// Available reports whether quantity units can currently be bought.
func (p *Product) Available(quantity *big.Int) bool {
	if p == nil || !p.IsActive || p.Stock == nil || quantity == nil {
		return false
	}
	return p.Stock.Cmp(quantity) >= 0
}

type CreateProduct struct {
	Name        string
	Description string
	Price       *big.Int
	Stock       *big.Int
}

type UpdateProduct struct {
	ID          *big.Int
	Name        string
	Description string
	Price       *big.Int
	IsActive    bool
	Stock       *big.Int
}
