package httpx

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/apperr"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/units"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/wire"
)

// newValidator returns a validator that understands wire.Int fields.
// wide_gte0 accepts 0..2^256-1 and wide_gt0 accepts 1..2^256-1, the range of
// a uint256 contract argument.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Validate wire.Int as its decimal text; unset values become nil so
	// required and omitempty behave as for pointers.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		n, ok := field.Interface().(wire.Int)
		if !ok || !n.IsSet() {
			return nil
		}
		return n.String()
	}, wire.Int{})
	_ = v.RegisterValidation("wide_gte0", wideRange(0))
	_ = v.RegisterValidation("wide_gt0", wideRange(1))
	return v
}

func wideRange(min int64) validator.Func {
	lower := big.NewInt(min)
	return func(fl validator.FieldLevel) bool {
		n, ok := new(big.Int).SetString(fl.Field().String(), 10)
		if !ok {
			return false
		}
		return n.Cmp(lower) >= 0 && n.Cmp(units.MaxNative) <= 0
	}
}

// validationError turns validator output into a ValidationError naming the
// offending fields.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, err, "invalid request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.New(apperr.KindValidation, "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "wide_gte0":
		return fmt.Sprintf("%s must be an integer between 0 and 2^256-1", fe.Field())
	case "wide_gt0":
		return fmt.Sprintf("%s must be an integer between 1 and 2^256-1", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20-byte hex address", fe.Field())
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}
