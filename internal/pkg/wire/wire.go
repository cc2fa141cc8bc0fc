// Package wire carries wide integers across JSON without precision loss.
//
// Marshal rewrites every wide integer in a value tree into its decimal string
// before encoding. A JSON number above 2^53-1 is not safely representable by
// most clients, so any other integer outside that range is rewritten too.
// On the request side Int and BigInt parse decimal strings (or JSON numbers)
// back into wide integers.
package wire

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

// MaxSafeInteger is the largest integer a float64 JSON number represents exactly.
const MaxSafeInteger = 1<<53 - 1

var (
	maxSafe = big.NewInt(MaxSafeInteger)
	minSafe = big.NewInt(-MaxSafeInteger)

	bigIntType      = reflect.TypeOf(big.Int{})
	wireIntType     = reflect.TypeOf(Int{})
	numberType      = reflect.TypeOf(json.Number(""))
	marshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// ErrNotInteger is returned when a value cannot be read as a wide integer.
var ErrNotInteger = errors.New("wire: not an integer")

// Marshal encodes v as JSON with every wide integer rendered as a decimal string.
func Marshal(v any) ([]byte, error) {
	tree, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// Decode parses JSON into a value tree, keeping numbers as json.Number so no
// integer is rounded through float64.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return out, nil
}

// Normalize converts v into a tree of map[string]any, []any and JSON scalars,
// replacing wide integers with decimal strings.
func Normalize(v any) (any, error) {
	return normalize(reflect.ValueOf(v))
}

func normalize(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Type() {
	case bigIntType:
		n := v.Interface().(big.Int)
		return n.String(), nil
	case wireIntType:
		n := v.Interface().(Int)
		if n.Int == nil {
			return nil, nil
		}
		return n.String(), nil
	case numberType:
		return normalizeNumber(v.Interface().(json.Number)), nil
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if n, ok := v.Interface().(*big.Int); ok {
			return n.String(), nil
		}
		return normalize(v.Elem())
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem())
	}

	if m, ok := asMarshaler(v); ok {
		raw, err := m.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("wire: marshal %s: %w", v.Type(), err)
		}
		tree, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		return normalize(reflect.ValueOf(tree))
	}
	if tm, ok := asTextMarshaler(v); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("wire: marshal %s: %w", v.Type(), err)
		}
		return string(text), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n > MaxSafeInteger || n < -MaxSafeInteger {
			return strconv.FormatInt(n, 10), nil
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := v.Uint()
		if n > MaxSafeInteger {
			return strconv.FormatUint(n, 10), nil
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), v.Bytes()...), nil
		}
		return normalizeList(v)
	case reflect.Array:
		return normalizeList(v)
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return normalizeMap(v)
	case reflect.Struct:
		return normalizeStruct(v)
	}
	return nil, fmt.Errorf("wire: unsupported type %s", v.Type())
}

func normalizeNumber(n json.Number) any {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return n
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return n
	}
	if i.Cmp(maxSafe) > 0 || i.Cmp(minSafe) < 0 {
		return i.String()
	}
	return n
}

func normalizeList(v reflect.Value) (any, error) {
	out := make([]any, v.Len())
	for i := range out {
		item, err := normalize(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func normalizeMap(v reflect.Value) (any, error) {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		item, err := normalize(iter.Value())
		if err != nil {
			return nil, err
		}
		out[key] = item
	}
	return out, nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		return string(text), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("wire: unsupported map key type %s", k.Type())
}

func normalizeStruct(v reflect.Value) (any, error) {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		fv := v.Field(i)

		if f.Anonymous && name == "" {
			embedded, err := normalize(fv)
			if err != nil {
				return nil, err
			}
			if m, ok := embedded.(map[string]any); ok {
				for k, val := range m {
					if _, taken := out[k]; !taken {
						out[k] = val
					}
				}
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		item, err := normalize(fv)
		if err != nil {
			return nil, err
		}
		out[name] = item
	}
	return out, nil
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == want {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

func asMarshaler(v reflect.Value) (json.Marshaler, bool) {
	if v.Type().Implements(marshalerType) {
		m, ok := v.Interface().(json.Marshaler)
		return m, ok
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(marshalerType) {
		m, ok := v.Addr().Interface().(json.Marshaler)
		return m, ok
	}
	return nil, false
}

func asTextMarshaler(v reflect.Value) (encoding.TextMarshaler, bool) {
	if v.Type().Implements(textMarshalType) {
		m, ok := v.Interface().(encoding.TextMarshaler)
		return m, ok
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(textMarshalType) {
		m, ok := v.Addr().Interface().(encoding.TextMarshaler)
		return m, ok
	}
	return nil, false
}
