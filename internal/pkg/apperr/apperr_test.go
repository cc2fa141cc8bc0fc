package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("create product: %w", New(KindInvalidAmount, "bad price %q", "abc"))

	assert.Equal(t, KindInvalidAmount, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := Wrap(KindLedgerTimeout, context.DeadlineExceeded, "getProduct")

	assert.ErrorIs(t, err, New(KindLedgerTimeout, ""))
	assert.NotErrorIs(t, err, New(KindLedgerRPC, ""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "getProduct: context deadline exceeded", err.Error())
}

func TestReverted(t *testing.T) {
	err := Reverted("purchaseProduct", "Not enough stock", nil)

	assert.Equal(t, KindLedgerCallReverted, err.Kind)
	assert.Equal(t, "purchaseProduct reverted: Not enough stock", err.Error())
	assert.Equal(t, "Not enough stock", ReasonOf(fmt.Errorf("wrapped: %w", err)))

	bare := Reverted("purchaseProduct", "", nil)
	assert.Equal(t, "purchaseProduct reverted", bare.Error())
}
