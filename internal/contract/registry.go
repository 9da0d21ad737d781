package contract

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Formatter post-processes a decoded call result.
type Formatter func(value interface{}) (interface{}, error)

// Registry maps ABI names to parsed ABIs, contract addresses to ABI names and
// (ABI, method) pairs to output formatters.
type Registry struct {
	mu         sync.RWMutex
	abis       map[string]abi.ABI
	contracts  map[common.Address]string
	formatters map[string]map[string]Formatter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		abis:       make(map[string]abi.ABI),
		contracts:  make(map[common.Address]string),
		formatters: make(map[string]map[string]Formatter),
	}
}

// RegisterABI parses and stores an ABI JSON document under name.
func (r *Registry) RegisterABI(name, abiJSON string) error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("parse abi %s: %w", name, err)
	}
	r.RegisterParsedABI(name, parsed)
	return nil
}

// RegisterParsedABI stores an already parsed ABI under name.
func (r *Registry) RegisterParsedABI(name string, parsed abi.ABI) {
	r.mu.Lock()
	r.abis[name] = parsed
	r.mu.Unlock()
}

// RegisterContract binds an address to a registered ABI so calls may omit it.
func (r *Registry) RegisterContract(address, abiName string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address: %s", address)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.abis[abiName]; !ok {
		return fmt.Errorf("unknown abi: %s", abiName)
	}
	r.contracts[common.HexToAddress(address)] = abiName
	return nil
}

// RegisterFormatter installs a formatter applied to method results of abiName.
func (r *Registry) RegisterFormatter(abiName, method string, f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	methods, ok := r.formatters[abiName]
	if !ok {
		methods = make(map[string]Formatter)
		r.formatters[abiName] = methods
	}
	methods[method] = f
}

// ABI returns the ABI registered under name.
func (r *Registry) ABI(name string) (abi.ABI, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parsed, ok := r.abis[name]
	return parsed, ok
}

// ABIName returns the ABI name bound to an address.
func (r *Registry) ABIName(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.contracts[common.HexToAddress(address)]
	return name, ok
}

// Formatter returns the formatter for (abiName, method), or nil.
func (r *Registry) Formatter(abiName, method string) Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatters[abiName][method]
}

// Resolve returns the ABI used for calls to address. An empty abiName falls
// back to the ABI bound with RegisterContract.
func (r *Registry) Resolve(address, abiName string) (abi.ABI, string, error) {
	if abiName == "" {
		name, ok := r.ABIName(address)
		if !ok {
			return abi.ABI{}, "", fmt.Errorf("no abi registered for %s", address)
		}
		abiName = name
	}
	parsed, ok := r.ABI(abiName)
	if !ok {
		return abi.ABI{}, "", fmt.Errorf("unknown abi: %s", abiName)
	}
	return parsed, abiName, nil
}

// EncodeCall packs method and args into calldata. The result depends only on
// its inputs, which makes it usable as a deduplication key.
func (r *Registry) EncodeCall(address, abiName, method string, args []interface{}) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	parsed, _, err := r.Resolve(address, abiName)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Decode unpacks the return data of method. Single-output methods yield the
// bare value, others a []interface{}.
func (r *Registry) Decode(abiName, method string, data []byte) (interface{}, error) {
	parsed, ok := r.ABI(abiName)
	if !ok {
		return nil, fmt.Errorf("unknown abi: %s", abiName)
	}
	values, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}
