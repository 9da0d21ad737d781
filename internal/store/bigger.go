package store

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"chainstate/internal/model"
)

// BiggerSign picks, among SIGNED typed-data records of userAddress whose
// message nonce equals nonce and whose spender equals counterparty, the one
// with the largest message value. Equal values keep the record inserted
// first. The bool is false when nothing matches.
func (s *Store) BiggerSign(chainID uint64, userAddress string, nonce *big.Int, counterparty string) (model.TypedSign, bool) {
	if !common.IsHexAddress(userAddress) || !common.IsHexAddress(counterparty) || nonce == nil {
		return model.TypedSign{}, false
	}
	user := common.HexToAddress(userAddress)
	spender := common.HexToAddress(counterparty)

	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.chains[chainID]
	if !ok {
		return model.TypedSign{}, false
	}

	var (
		best      model.TypedSign
		bestValue *big.Int
		found     bool
	)
	for _, rec := range cs.typedSigns {
		if rec.State != model.SignSigned || rec.Data == nil {
			continue
		}
		if !common.IsHexAddress(rec.UserAddress) || common.HexToAddress(rec.UserAddress) != user {
			continue
		}
		msg := rec.Data.Message
		recNonce, err := toBigInt(msg["nonce"])
		if err != nil || recNonce.Cmp(nonce) != 0 {
			continue
		}
		recSpender, ok := msg["spender"].(string)
		if !ok || !common.IsHexAddress(recSpender) || common.HexToAddress(recSpender) != spender {
			continue
		}
		value, err := toBigInt(msg["value"])
		if err != nil {
			continue
		}

		switch {
		case !found:
		case value.Cmp(bestValue) > 0:
		case value.Cmp(bestValue) == 0 && rec.Seq < best.Seq:
		default:
			continue
		}
		best, bestValue, found = rec, value, true
	}
	return best, found
}

func toBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case *math.HexOrDecimal256:
		if v == nil {
			return nil, fmt.Errorf("nil HexOrDecimal256")
		}
		return new(big.Int).Set((*big.Int)(v)), nil
	case string:
		n, ok := math.ParseBig256(strings.TrimSpace(v))
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	case json.Number:
		n, ok := math.ParseBig256(v.String())
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("non-integer value %v", v)
		}
		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", value)
	}
}
