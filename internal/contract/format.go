package contract

import (
	"fmt"
	"math"
	"math/big"
)

// ScaleFormatter divides an integer result by 10^decimals and returns a
// float64, e.g. a raw 12345000 with 6 decimals becomes 12.345.
func ScaleFormatter(decimals uint8) Formatter {
	return func(value interface{}) (interface{}, error) {
		n, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		if n.IsInt64() && absInt64(n.Int64()) < 1<<53 {
			return float64(n.Int64()) / math.Pow10(int(decimals)), nil
		}
		scale := new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f, _ := new(big.Float).SetPrec(256).Quo(new(big.Float).SetPrec(256).SetInt(n), scale).Float64()
		return f, nil
	}
}

// StringFormatter renders integer results in base 10.
func StringFormatter(value interface{}) (interface{}, error) {
	n, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	return n.String(), nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
