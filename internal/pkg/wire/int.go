package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
)

// Int is a wide integer that decodes from either a JSON number or a decimal
// string and always encodes as a decimal string. The zero value is unset.
type Int struct {
	*big.Int
}

// IsSet reports whether the value was present.
func (i Int) IsSet() bool { return i.Int != nil }

// Big returns the wrapped value or nil when unset.
func (i Int) Big() *big.Int { return i.Int }

func (i Int) MarshalJSON() ([]byte, error) {
	if i.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(i.Int.String())
}

func (i *Int) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if string(raw) == "null" {
		i.Int = nil
		return nil
	}
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	}
	n, err := parseDecimal(text)
	if err != nil {
		return err
	}
	i.Int = n
	return nil
}

// BigInt reads a wide integer out of a decoded value: *big.Int, Int, native
// integers, json.Number, integral float64 within the safe range, or decimal
// strings.
func BigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: missing value", ErrNotInteger)
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: missing value", ErrNotInteger)
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case Int:
		if n.Int == nil {
			return nil, fmt.Errorf("%w: missing value", ErrNotInteger)
		}
		return new(big.Int).Set(n.Int), nil
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > MaxSafeInteger {
			return nil, fmt.Errorf("%w: %v is not an exact integer", ErrNotInteger, n)
		}
		return big.NewInt(int64(n)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrNotInteger, v)
}

func parseDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "_") {
		return nil, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	return n, nil
}
