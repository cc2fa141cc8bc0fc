// Package units converts between the marketplace's quoted currency (ether)
// and the ledger's native integer unit (wei). All arithmetic is exact.
package units

import (
	"math/big"
	"regexp"

	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
)

// Decimals is the power of ten between one ether and one wei.
const Decimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// MaxNative is the largest amount a uint256 contract argument can carry.
var MaxNative = gethmath.MaxBig256

// ToNative parses a non-negative decimal ether amount into wei.
func ToNative(amount string) (*big.Int, error) {
	if !decimalPattern.MatchString(amount) {
		return nil, apperr.New(apperr.KindInvalidAmount, "invalid amount %q: expected a non-negative decimal", amount)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidAmount, err, "invalid amount %q", amount)
	}
	if -d.Exponent() > Decimals {
		return nil, apperr.New(apperr.KindInvalidAmount, "invalid amount %q: more than %d fractional digits", amount, Decimals)
	}
	wei := d.Shift(Decimals).BigInt()
	if wei.Cmp(MaxNative) > 0 {
		return nil, apperr.New(apperr.KindOverflow, "amount %q exceeds the uint256 range", amount)
	}
	return wei, nil
}

// FromNative formats a wei amount as a canonical ether decimal string.
func FromNative(wei *big.Int) (string, error) {
	if wei == nil || wei.Sign() < 0 {
		return "", apperr.New(apperr.KindInvalidAmount, "invalid native amount %v", wei)
	}
	return decimal.NewFromBigInt(wei, -Decimals).String(), nil
}

// TotalPrice multiplies a native unit price by a quantity.
func TotalPrice(price, quantity *big.Int) (*big.Int, error) {
	if price == nil || quantity == nil {
		return nil, apperr.New(apperr.KindInvalidAmount, "price and quantity are required")
	}
	if price.Sign() < 0 || quantity.Sign() < 0 {
		return nil, apperr.New(apperr.KindInvalidAmount, "price and quantity must be non-negative")
	}
	total := new(big.Int).Mul(price, quantity)
	if total.Cmp(MaxNative) > 0 {
		return nil, apperr.New(apperr.KindOverflow, "total price %s x %s exceeds the uint256 range", price, quantity)
	}
	return total, nil
}
