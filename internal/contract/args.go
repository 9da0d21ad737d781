package contract

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"chainstate/internal/model"
)

// ParseCallSpec parses "address:abi:method[:arg,arg...]" and coerces the
// arguments to the Go types the ABI expects. An empty abi segment uses the
// ABI bound to the address.
func (r *Registry) ParseCallSpec(input string) (model.CallSpec, error) {
	parts := strings.SplitN(strings.TrimSpace(input), ":", 4)
	if len(parts) < 3 {
		return model.CallSpec{}, fmt.Errorf("invalid call %q: want address:abi:method[:args]", input)
	}
	address := strings.TrimSpace(parts[0])
	if !common.IsHexAddress(address) {
		return model.CallSpec{}, fmt.Errorf("invalid address: %s", address)
	}
	spec := model.CallSpec{
		Address: common.HexToAddress(address).Hex(),
		ABI:     strings.TrimSpace(parts[1]),
		Method:  strings.TrimSpace(parts[2]),
	}

	var raw []string
	if len(parts) == 4 && strings.TrimSpace(parts[3]) != "" {
		for _, arg := range strings.Split(parts[3], ",") {
			raw = append(raw, strings.TrimSpace(arg))
		}
	}

	parsed, _, err := r.Resolve(spec.Address, spec.ABI)
	if err != nil {
		return model.CallSpec{}, err
	}
	args, err := CoerceArgs(parsed, spec.Method, raw)
	if err != nil {
		return model.CallSpec{}, err
	}
	spec.Args = args
	return spec, nil
}

// CoerceArgs converts textual arguments into values accepted by abi.Pack.
func CoerceArgs(parsed abi.ABI, method string, raw []string) ([]interface{}, error) {
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found", method)
	}
	if len(raw) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s expects %d args, got %d", method, len(m.Inputs), len(raw))
	}

	args := make([]interface{}, 0, len(raw))
	for i, input := range m.Inputs {
		value, err := coerceArg(input.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d (%s): %w", i, input.Type.String(), err)
		}
		args = append(args, value)
	}
	return args, nil
}

func coerceArg(t abi.Type, raw string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address: %s", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer: %s", raw)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value for unsigned type: %s", raw)
		}
		if t.Size > 64 {
			return n, nil
		}
		v := reflect.New(t.GetType()).Elem()
		if t.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value out of range: %s", raw)
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value out of range: %s", raw)
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		data, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(data) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(data))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(data))
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}
