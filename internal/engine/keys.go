package engine

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"chainstate/internal/model"
)

// CallKey derives the deduplication key of call on chain: the lowercased
// address, the calldata and the chain endpoint.
func (e *Engine) CallKey(chain model.ChainContext, call model.CallSpec) (model.CallKey, error) {
	data, err := e.encoder.EncodeCall(call.Address, call.ABI, call.Method, call.Args)
	if err != nil {
		return "", err
	}
	return model.CallKey(strings.ToLower(call.Address) + "_" + hexutil.Encode(data) + "@" + chain.RPC), nil
}

// invalidKey is where reads that cannot be encoded record their error.
func invalidKey(chain model.ChainContext, call model.CallSpec) model.CallKey {
	return model.CallKey(strings.ToLower(call.Address) + "_invalid:" + call.ABI + "." + call.Method + "@" + chain.RPC)
}

func (e *Engine) keyOf(chain model.ChainContext, call model.CallSpec) model.CallKey {
	key, err := e.CallKey(chain, call)
	if err != nil {
		return invalidKey(chain, call)
	}
	return key
}
