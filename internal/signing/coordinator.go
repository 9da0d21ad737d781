package signing

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"chainstate/internal/metrics"
	"chainstate/internal/model"
	"chainstate/internal/store"
)

const (
	flavorTyped = "typed"
	flavorPlain = "plain"
	flavorSiwe  = "siwe"
)

// Signer produces off-chain signatures for the connected account.
type Signer interface {
	// Address returns the account that signs, as a hex address.
	Address(ctx context.Context) (string, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	SignMessage(ctx context.Context, address, message string) ([]byte, error)
}

// SignInRequest is a sign-in message plus the profile echoed into the record.
type SignInRequest struct {
	ID          string
	UserAddress string
	Message     string
	Profile     model.SiweProfile
}

// Coordinator drives the PENDING -> SIGNED | ERROR flow of signature
// requests. Each request gets exactly one signer attempt.
type Coordinator struct {
	store   *store.Store
	signer  Signer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCoordinator builds a Coordinator; nil logger and metrics are allowed.
func NewCoordinator(st *store.Store, signer Signer, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Coordinator{store: st, signer: signer, logger: logger, metrics: m}
}

// TypedDataKey returns the EIP-712 digest of data as hex; it identifies the
// request in the store.
func TypedDataKey(data apitypes.TypedData) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}
	return hexutil.Encode(digest), nil
}

// SignTypedData requests an EIP-712 signature and returns the record key.
// Signer failures are recorded as ERROR; the returned error only reports
// data that cannot be hashed or a rejected store update.
func (c *Coordinator) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	key, err := TypedDataKey(data)
	if err != nil {
		return "", err
	}
	chainID := c.store.CurrentChain().ID
	if _, err := c.store.Dispatch(store.TypedSignRequested{ChainID: chainID, Key: key}); err != nil {
		return key, err
	}

	user, err := c.signer.Address(ctx)
	if err == nil {
		user, err = checksum(user)
	}
	if err != nil {
		return key, c.typedFailed(chainID, key, "", err)
	}

	sig, err := c.signer.SignTypedData(ctx, data)
	if err != nil {
		return key, c.typedFailed(chainID, key, user, err)
	}

	dataCopy := data
	_, err = c.store.Dispatch(store.TypedSignProcessed{
		ChainID:     chainID,
		Key:         key,
		UserAddress: user,
		Signature:   hexutil.Encode(sig),
		Data:        &dataCopy,
	})
	if err != nil {
		return key, err
	}
	c.metrics.Signatures.WithLabelValues(flavorTyped, string(model.SignSigned)).Inc()
	c.logger.Debug("typed data signed", zap.String("key", key), zap.String("user", user))
	return key, nil
}

func (c *Coordinator) typedFailed(chainID uint64, key, user string, cause error) error {
	c.metrics.Signatures.WithLabelValues(flavorTyped, string(model.SignError)).Inc()
	c.logger.Warn("typed data sign failed", zap.String("key", key), zap.Error(cause))
	_, err := c.store.Dispatch(store.TypedSignFailed{
		ChainID:     chainID,
		Key:         key,
		UserAddress: user,
		Error:       cause.Error(),
	})
	return err
}

// SignMessage requests a signature over a free-text message. The record is
// keyed by id and the checksummed user address; an address that cannot be
// parsed is recorded as ERROR under the address as given.
func (c *Coordinator) SignMessage(ctx context.Context, id, userAddress, message string) error {
	chainID := c.store.CurrentChain().ID
	user, err := checksum(userAddress)
	if err != nil {
		return c.plainFailed(chainID, id, userAddress, err)
	}
	if _, err := c.store.Dispatch(store.PlainSignRequested{ChainID: chainID, ID: id, UserAddress: user}); err != nil {
		return err
	}

	sig, err := c.signer.SignMessage(ctx, user, message)
	if err != nil {
		return c.plainFailed(chainID, id, user, err)
	}

	_, err = c.store.Dispatch(store.PlainSignProcessed{
		ChainID:     chainID,
		ID:          id,
		UserAddress: user,
		Signature:   hexutil.Encode(sig),
		Message:     message,
	})
	if err == nil {
		c.metrics.Signatures.WithLabelValues(flavorPlain, string(model.SignSigned)).Inc()
	}
	return err
}

func (c *Coordinator) plainFailed(chainID uint64, id, user string, cause error) error {
	c.metrics.Signatures.WithLabelValues(flavorPlain, string(model.SignError)).Inc()
	c.logger.Warn("message sign failed", zap.String("id", id), zap.String("user", user), zap.Error(cause))
	_, err := c.store.Dispatch(store.PlainSignFailed{ChainID: chainID, ID: id, UserAddress: user, Error: cause.Error()})
	return err
}

// SignIn requests a sign-in signature and stores it with the profile fields.
func (c *Coordinator) SignIn(ctx context.Context, req SignInRequest) error {
	chainID := c.store.CurrentChain().ID
	user, err := checksum(req.UserAddress)
	if err != nil {
		return c.siweFailed(chainID, req.ID, req.UserAddress, err)
	}
	if _, err := c.store.Dispatch(store.SiweSignRequested{ChainID: chainID, ID: req.ID, UserAddress: user}); err != nil {
		return err
	}

	sig, err := c.signer.SignMessage(ctx, user, req.Message)
	if err != nil {
		return c.siweFailed(chainID, req.ID, user, err)
	}

	_, err = c.store.Dispatch(store.SiweSignProcessed{
		ChainID:     chainID,
		ID:          req.ID,
		UserAddress: user,
		Signature:   hexutil.Encode(sig),
		Message:     req.Message,
		Profile:     req.Profile,
	})
	if err == nil {
		c.metrics.Signatures.WithLabelValues(flavorSiwe, string(model.SignSigned)).Inc()
	}
	return err
}

// RestoreSignIn records a sign-in signature obtained earlier, without
// contacting the signer.
func (c *Coordinator) RestoreSignIn(req SignInRequest, signature string) error {
	chainID := c.store.CurrentChain().ID
	user, err := checksum(req.UserAddress)
	if err != nil {
		return c.siweFailed(chainID, req.ID, req.UserAddress, err)
	}
	_, err = c.store.Dispatch(store.SiweSignRestored{
		ChainID:     chainID,
		ID:          req.ID,
		UserAddress: user,
		Signature:   signature,
		Message:     req.Message,
		Profile:     req.Profile,
	})
	return err
}

func (c *Coordinator) siweFailed(chainID uint64, id, user string, cause error) error {
	c.metrics.Signatures.WithLabelValues(flavorSiwe, string(model.SignError)).Inc()
	c.logger.Warn("sign-in failed", zap.String("id", id), zap.String("user", user), zap.Error(cause))
	_, err := c.store.Dispatch(store.SiweSignFailed{ChainID: chainID, ID: id, UserAddress: user, Error: cause.Error()})
	return err
}

func checksum(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address: %s", address)
	}
	return common.HexToAddress(address).Hex(), nil
}
