package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"chainstate/internal/contract"
	"chainstate/internal/model"
)

// Backend is the part of Client an Account needs.
type Backend interface {
	ChainID(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Account sends transactions and signs messages with a local private key.
type Account struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	backend  Backend
	registry *contract.Registry
}

// NewAccount parses a hex private key. backend may be nil for an account
// that only signs.
func NewAccount(hexKey string, backend Backend, registry *contract.Registry) (*Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Account{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		backend:  backend,
		registry: registry,
	}, nil
}

// Address returns the checksummed account address.
func (a *Account) Address(_ context.Context) (string, error) {
	return a.address.Hex(), nil
}

func (a *Account) ChainID(ctx context.Context) (uint64, error) {
	if a.backend == nil {
		return 0, fmt.Errorf("account has no backend")
	}
	return a.backend.ChainID(ctx)
}

// EstimateGas estimates the gas of call sent from the account.
func (a *Account) EstimateGas(ctx context.Context, call model.CallSpec) (uint64, error) {
	msg, err := a.callMsg(call)
	if err != nil {
		return 0, err
	}
	gas, err := a.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// Send signs call as a legacy transaction and broadcasts it.
func (a *Account) Send(ctx context.Context, call model.CallSpec, gasLimit uint64) (string, error) {
	msg, err := a.callMsg(call)
	if err != nil {
		return "", err
	}
	chainID, err := a.ChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       msg.To,
		Data:     msg.Data,
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

// SignTypedData signs the EIP-712 digest of data.
func (a *Account) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return a.sign(digest)
}

// SignMessage signs message with the personal-message prefix.
func (a *Account) SignMessage(_ context.Context, address, message string) ([]byte, error) {
	if !common.IsHexAddress(address) || common.HexToAddress(address) != a.address {
		return nil, fmt.Errorf("unknown account %s", address)
	}
	return a.sign(accounts.TextHash([]byte(message)))
}

func (a *Account) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, a.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (a *Account) callMsg(call model.CallSpec) (ethereum.CallMsg, error) {
	if a.backend == nil {
		return ethereum.CallMsg{}, fmt.Errorf("account has no backend")
	}
	data, err := a.registry.EncodeCall(call.Address, call.ABI, call.Method, call.Args)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	to := common.HexToAddress(call.Address)
	return ethereum.CallMsg{From: a.address, To: &to, Data: data}, nil
}
