package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainstate/internal/contract"
	"chainstate/internal/model"
)

const testKey = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeBackend struct {
	estimateMsg ethereum.CallMsg
	sent        *types.Transaction
}

func (b *fakeBackend) ChainID(context.Context) (uint64, error) { return 97, nil }

func (b *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.estimateMsg = msg
	return 46000, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(3_000_000_000), nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 5, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = tx
	return nil
}

func approveCall() model.CallSpec {
	return model.CallSpec{
		Address: "0x1111111111111111111111111111111111111111",
		ABI:     contract.ERC20,
		Method:  "approve",
		Args:    []interface{}{common.HexToAddress("0x2222222222222222222222222222222222222222"), big.NewInt(1000)},
	}
}

func TestAccountSendsSignedTransaction(t *testing.T) {
	registry, err := contract.NewDefaultRegistry()
	require.NoError(t, err)
	backend := &fakeBackend{}
	account, err := NewAccount(testKey, backend, registry)
	require.NoError(t, err)
	ctx := context.Background()

	gas, err := account.EstimateGas(ctx, approveCall())
	require.NoError(t, err)
	assert.Equal(t, uint64(46000), gas)
	from, _ := account.Address(ctx)
	assert.Equal(t, from, backend.estimateMsg.From.Hex())

	hash, err := account.Send(ctx, approveCall(), 59800)
	require.NoError(t, err)
	require.NotNil(t, backend.sent)
	assert.Equal(t, backend.sent.Hash().Hex(), hash)
	assert.Equal(t, uint64(59800), backend.sent.Gas())
	assert.Equal(t, uint64(5), backend.sent.Nonce())
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), *backend.sent.To())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(97)), backend.sent)
	require.NoError(t, err)
	assert.Equal(t, from, sender.Hex())
}

func TestAccountRejectsForeignAddress(t *testing.T) {
	account, err := NewAccount(testKey, nil, nil)
	require.NoError(t, err)

	_, err = account.SignMessage(context.Background(), "0x2222222222222222222222222222222222222222", "hi")
	assert.Error(t, err)
	_, err = account.ChainID(context.Background())
	assert.Error(t, err)
}

func TestNewAccountRejectsBadKey(t *testing.T) {
	_, err := NewAccount("0x1234", nil, nil)
	assert.Error(t, err)
}
