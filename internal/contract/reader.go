package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"chainstate/internal/model"
)

// Caller performs a raw eth_call.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader executes contract reads through the registry: pack, call, unpack
// and apply the registered formatter.
type Reader struct {
	registry *Registry
	caller   Caller
}

// NewReader returns a Reader resolving ABIs from registry.
func NewReader(registry *Registry, caller Caller) *Reader {
	return &Reader{registry: registry, caller: caller}
}

// Read performs the call described by spec at the latest block.
func (r *Reader) Read(ctx context.Context, spec model.CallSpec) (interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	if !common.IsHexAddress(spec.Address) {
		return nil, fmt.Errorf("invalid address: %s", spec.Address)
	}
	parsed, abiName, err := r.registry.Resolve(spec.Address, spec.ABI)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(spec.Method, spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", spec.Method, err)
	}

	to := common.HexToAddress(spec.Address)
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", spec.Method, err)
	}

	value, err := r.registry.Decode(abiName, spec.Method, resp)
	if err != nil {
		return nil, err
	}
	if f := r.registry.Formatter(abiName, spec.Method); f != nil {
		return f(value)
	}
	return value, nil
}
