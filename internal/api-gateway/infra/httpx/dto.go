package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

// DecimalText is a currency amount as sent by the client. It accepts a JSON
// string or a JSON number and keeps the literal text, so the amount is never
// rounded through float64 before conversion.
type DecimalText string

func (d *DecimalText) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*d = ""
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*d = DecimalText(s)
	case len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')):
		*d = DecimalText(raw)
	default:
		return fmt.Errorf("amount must be a decimal string, got %s", raw)
	}
	return nil
}

type CreateProductRequest struct {
	Name         string      `json:"name" validate:"required"`
	Description  string      `json:"description"`
	PriceInEther DecimalText `json:"priceInEther" validate:"required"`
	Stock        wire.Int    `json:"stock" validate:"required,wide_gte0"`
}

type UpdateProductRequest struct {
	ID           wire.Int    `json:"id" validate:"required,wide_gte0"`
	Name         string      `json:"name" validate:"required"`
	Description  string      `json:"description"`
	PriceInEther DecimalText `json:"priceInEther" validate:"required"`
	IsActive     *bool       `json:"isActive" validate:"required"`
	Stock        wire.Int    `json:"stock" validate:"required,wide_gte0"`
}

// PurchaseRequest selects the buyer by pool index (buyerIndex) or by
// address (buyer). Neither selects the default buyer.
type PurchaseRequest struct {
	ProductID  wire.Int `json:"productId" validate:"required,wide_gte0"`
	Quantity   wire.Int `json:"quantity" validate:"required,wide_gt0"`
	BuyerIndex wire.Int `json:"buyerIndex" validate:"omitempty,wide_gte0"`
	Buyer      string   `json:"buyer" validate:"omitempty,eth_addr"`
}

type TxResponse struct {
	Status string          `json:"status"`
	Tx     *entity.Receipt `json:"tx"`
}

type PurchaseResponse struct {
	Status   string          `json:"status"`
	Tx       *entity.Receipt `json:"tx"`
	Order    *entity.Order   `json:"order,omitempty"`
	TypeInfo PurchaseTypes   `json:"typeInfo"`
}

// ProductView is a product as returned to clients: the contract record plus
// its price in ether.
type ProductView struct {
	*entity.Product
	PriceInEther string `json:"priceInEther"`
}

type ProductResponse struct {
	Product ProductView `json:"product"`
}

type ProductsResponse struct {
	Products []ProductView `json:"products"`
}

type OrderIDsResponse struct {
	OrderIDs []*big.Int `json:"orderIds"`
}

type HealthResponse struct {
	Status   string   `json:"status"`
	ChainID  *big.Int `json:"chainId,omitempty"`
	Accounts int      `json:"accounts"`
	Error    string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	TypeInfo any    `json:"typeInfo,omitempty"`
}

// TypedValue reports a value that took part in the purchase calculation
// together with the type it was computed as.
type TypedValue struct {
	Value *big.Int `json:"value"`
	Type  string   `json:"type"`
}

// PurchaseTypes describes the operands of a completed purchase.
type PurchaseTypes struct {
	BeforeCalculation struct {
		ProductPrice TypedValue `json:"productPrice"`
		Quantity     TypedValue `json:"quantity"`
	} `json:"beforeCalculation"`
	AfterCalculation struct {
		TotalPrice TypedValue `json:"totalPrice"`
	} `json:"afterCalculation"`
}

// PurchaseFailureTypes names the type of each operand known when a purchase
// failed, or "undefined" when the flow stopped before computing it.
type PurchaseFailureTypes struct {
	ProductPrice string `json:"productPrice"`
	Quantity     string `json:"quantity"`
	TotalPrice   string `json:"totalPrice"`
}
