package ledger

import (
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/core/domain/entity"
)

// rpcReceipt is the subset of eth_getTransactionReceipt the gateway reads.
// Optional fields stay pointers so nodes that omit them still decode.
type rpcReceipt struct {
	TxHash            common.Hash     `json:"transactionHash"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	Status            *hexutil.Uint64 `json:"status"`
	Logs              []rpcLog        `json:"logs"`
}

type rpcLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	LogIndex hexutil.Uint64 `json:"logIndex"`
}

func (c *Contract) toReceipt(r *rpcReceipt) *entity.Receipt {
	out := &entity.Receipt{
		TransactionHash:   r.TxHash.Hex(),
		BlockHash:         r.BlockHash.Hex(),
		From:              entity.Account(r.From.Hex()),
		GasUsed:           uint64(r.GasUsed),
		CumulativeGasUsed: uint64(r.CumulativeGasUsed),
		Status:            1,
		Events:            make([]entity.Event, 0, len(r.Logs)),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = new(big.Int).Set(r.BlockNumber.ToInt())
	}
	if r.To != nil {
		out.To = entity.Account(r.To.Hex())
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice.ToInt())
	}
	// Receipts without a status field predate Byzantium and count as
	// successful.
	if r.Status != nil {
		out.Status = uint64(*r.Status)
	}
	for _, l := range r.Logs {
		out.Events = append(out.Events, c.decodeLog(l))
	}
	return out
}

// decodeLog names a log after the matching contract event and decodes its
// arguments. Logs the contract interface does not describe are kept raw.
func (c *Contract) decodeLog(l rpcLog) entity.Event {
	ev := entity.Event{
		Address:  entity.Account(l.Address.Hex()),
		LogIndex: uint64(l.LogIndex),
		Topics:   make([]string, len(l.Topics)),
		Data:     hexutil.Encode(l.Data),
	}
	for i, t := range l.Topics {
		ev.Topics[i] = t.Hex()
	}
	if len(l.Topics) == 0 {
		return ev
	}

	event, err := c.abi.EventByID(l.Topics[0])
	if err != nil {
		return ev
	}
	ev.Name = event.Name

	raw := make(map[string]any, len(event.Inputs))
	if len(l.Data) > 0 {
		if err := event.Inputs.UnpackIntoMap(raw, l.Data); err != nil {
			return ev
		}
	}
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(raw, indexed, l.Topics[1:]); err != nil {
			return ev
		}
	}

	ev.ReturnValue = make(map[string]any, len(raw))
	for _, in := range event.Inputs {
		if v, ok := raw[in.Name]; ok {
			ev.ReturnValue[in.Name] = decodeValue(&in.Type, reflect.ValueOf(v))
		}
	}
	return ev
}

// decodeOutputs turns unpacked method outputs into a value tree. A single
// output is returned on its own; several outputs become a map keyed by output
// name, or by position when unnamed.
func decodeOutputs(args abi.Arguments, values []any) any {
	if len(values) == 0 {
		return nil
	}
	if len(args) == 1 && len(values) == 1 {
		return decodeValue(&args[0].Type, reflect.ValueOf(values[0]))
	}
	out := make(map[string]any, len(values))
	for i, v := range values {
		key := strconv.Itoa(i)
		var typ *abi.Type
		if i < len(args) {
			typ = &args[i].Type
			if args[i].Name != "" {
				key = args[i].Name
			}
		}
		out[key] = decodeValue(typ, reflect.ValueOf(v))
	}
	return out
}

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	addressType = reflect.TypeOf(common.Address{})
	hashType    = reflect.TypeOf(common.Hash{})
)

// decodeValue converts one unpacked ABI value: every integer becomes a
// *big.Int, addresses and hashes become hex strings, byte strings become 0x
// hex, tuples become maps keyed by component name and arrays become slices.
// typ may be nil, in which case tuple fields fall back to Go field names.
func decodeValue(typ *abi.Type, v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Type() {
	case bigIntType:
		if v.IsNil() {
			return nil
		}
		return new(big.Int).Set(v.Interface().(*big.Int))
	case addressType:
		return v.Interface().(common.Address).Hex()
	case hashType:
		return v.Interface().(common.Hash).Hex()
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return decodeValue(typ, v.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(v.Uint())
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(buf), v)
			return hexutil.Encode(buf)
		}
		var elem *abi.Type
		if typ != nil {
			elem = typ.Elem
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = decodeValue(elem, v.Index(i))
		}
		return out
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			name := v.Type().Field(i).Name
			var elem *abi.Type
			if typ != nil && typ.T == abi.TupleTy && i < len(typ.TupleElems) {
				elem = typ.TupleElems[i]
				if i < len(typ.TupleRawNames) && typ.TupleRawNames[i] != "" {
					name = typ.TupleRawNames[i]
				}
			}
			out[name] = decodeValue(elem, v.Field(i))
		}
		return out
	default:
		return v.Interface()
	}
}
