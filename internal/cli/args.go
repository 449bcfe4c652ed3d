package cli

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// parseArgs converts command line strings into the Go values the ABI encoder expects for args.
func parseArgs(op string, args abi.Arguments, raw []string) ([]any, error) {
	if len(args) != len(raw) {
		return nil, failures.New(failures.KindEncoding, op, fmt.Sprintf("expected %d argument(s), got %d", len(args), len(raw)))
	}

	values := make([]any, 0, len(raw))
	for i, arg := range args {
		value, err := parseValue(arg.Type, raw[i])
		if err != nil {
			return nil, failures.Wrap(failures.KindEncoding, op, fmt.Errorf("argument %d (%s): %w", i, arg.Type.String(), err))
		}
		values = append(values, value)
	}
	return values, nil
}

func parseValue(typ abi.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)

	switch typ.T {
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		if typ.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %q for unsigned type", raw)
		}
		if typ.Size > 64 {
			return n, nil
		}
		// sized Go integer types for 8 to 64 bits
		v := reflect.New(typ.GetType()).Elem()
		if typ.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value %q overflows %s", raw, typ.String())
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value %q overflows %s", raw, typ.String())
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil

	case abi.BoolTy:
		return strconv.ParseBool(raw)

	case abi.StringTy:
		return raw, nil

	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil

	case abi.BytesTy:
		return hexutil.Decode(raw)

	case abi.FixedBytesTy:
		data, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(data) != typ.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(data))
		}
		v := reflect.New(typ.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(data))
		return v.Interface(), nil

	default:
		return nil, fmt.Errorf("type %s cannot be given on the command line", typ.String())
	}
}

// parseWei reads a decimal or 0x prefixed amount.
func parseWei(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return value, nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case common.Address:
		return value.Hex()
	case []byte:
		return hexutil.Encode(value)
	case fmt.Stringer:
		return value.String()
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
			data := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(data), rv)
			return hexutil.Encode(data)
		}
		return fmt.Sprint(v)
	}
}
